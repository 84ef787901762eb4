package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
)

func TestFetchAll(t *testing.T) {
	server := serveRSS(t, rssFixture)

	// A closed server gives a deterministic dial failure
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	lib := openFeedLibrary(t)
	f := NewFetcher(lib, config.FeedsConfig{MaxItems: 10}, 5*time.Second)

	sources := []config.FeedSource{
		{Name: "a-good", Kind: "rss", URL: server.URL},
		{Name: "b-dead", Kind: "rss", URL: deadURL},
	}

	stats, err := f.FetchAll(context.Background(), sources)
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if stats.Sources != 2 || stats.Fetched != 2 || stats.Inserted != 2 || stats.Failed != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if len(stats.Results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(stats.Results))
	}
	if stats.Results[0].Source != "a-good" || stats.Results[1].Source != "b-dead" {
		t.Errorf("Expected results sorted by source, got %s then %s",
			stats.Results[0].Source, stats.Results[1].Source)
	}
	if stats.Results[1].Err == nil {
		t.Error("Expected error recorded for dead source")
	}

	count, err := lib.CountItems("")
	if err != nil {
		t.Fatalf("CountItems: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 stored items, got %d", count)
	}
}

func TestFetchAll_DedupesOnRefetch(t *testing.T) {
	server := serveRSS(t, rssFixture)

	lib := openFeedLibrary(t)
	f := NewFetcher(lib, config.FeedsConfig{MaxItems: 10}, 5*time.Second)
	sources := []config.FeedSource{{Name: "journal", Kind: "rss", URL: server.URL}}

	if _, err := f.FetchAll(context.Background(), sources); err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}

	stats, err := f.FetchAll(context.Background(), sources)
	if err != nil {
		t.Fatalf("FetchAll rerun failed: %v", err)
	}
	if stats.Fetched != 2 || stats.Inserted != 0 || stats.Deduped != 2 {
		t.Errorf("Expected full dedupe on rerun, got %+v", stats)
	}

	count, err := lib.CountItems("")
	if err != nil {
		t.Fatalf("CountItems: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 stored items after rerun, got %d", count)
	}
}

func TestFetchAll_PubMedSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/esearch.fcgi":
			w.Write([]byte(`{"esearchresult": {"count": "2", "idlist": ["38012345", "38099999"]}}`))
		case "/efetch.fcgi":
			w.Header().Set("Content-Type", "text/xml")
			w.Write([]byte(efetchFixture))
		default:
			t.Errorf("Unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	lib := openFeedLibrary(t)
	f := NewFetcher(lib, config.FeedsConfig{MaxItems: 10}, 5*time.Second)
	f.pubmed.baseURL = server.URL
	f.pubmed.minInterval = time.Millisecond

	sources := []config.FeedSource{
		{Name: "pubmed-cardio", Kind: "pubmed", Query: "semaglutide outcomes", Days: 30, Tags: []string{"glp1"}},
	}

	stats, err := f.FetchAll(context.Background(), sources)
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	// efetch returns two records but only one has a usable title
	if stats.Fetched != 1 || stats.Inserted != 1 || stats.Failed != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	items, err := lib.ListItems(library.StatusNew, 10)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 stored item, got %d", len(items))
	}

	item := items[0]
	if item.Source != "pubmed-cardio" {
		t.Errorf("Expected source from config, got %q", item.Source)
	}
	if item.Kind != "pubmed" || item.ExternalID != "38012345" {
		t.Errorf("Unexpected identity: kind=%q external=%q", item.Kind, item.ExternalID)
	}
	if len(item.Tags) != 1 || item.Tags[0] != "glp1" {
		t.Errorf("Expected source tags, got %v", item.Tags)
	}
}

func TestFetchAll_NoSources(t *testing.T) {
	f := NewFetcher(openFeedLibrary(t), config.FeedsConfig{}, time.Second)

	stats, err := f.FetchAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if stats.Sources != 0 || len(stats.Results) != 0 {
		t.Errorf("Expected empty stats, got %+v", stats)
	}
}

func TestFetchSource_UnknownKind(t *testing.T) {
	f := NewFetcher(openFeedLibrary(t), config.FeedsConfig{}, time.Second)

	res := f.fetchSource(context.Background(), config.FeedSource{Name: "odd", Kind: "gopher"})
	if res.Err == nil {
		t.Fatal("Expected error for unknown source kind")
	}
	if !strings.Contains(res.Err.Error(), "unknown source kind") {
		t.Errorf("Unexpected error: %v", res.Err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("Expected unchanged string, got %q", got)
	}
	if got := truncate("a long enough sentence", 6); got != "a long..." {
		t.Errorf("Expected marked cut, got %q", got)
	}
}
