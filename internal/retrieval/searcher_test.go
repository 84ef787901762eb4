package retrieval

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
	"pulsepress/internal/vector"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeEngine struct {
	vec []float32
	err error
}

func (e *fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.vec, nil
}

func (e *fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vec
	}
	return out, nil
}

func (e *fakeEngine) Dimensions() int { return len(e.vec) }

func (e *fakeEngine) Name() string { return "fake-embed" }

type fakeDenseIndex struct {
	hits        []vector.Hit
	searchErr   error
	searchCalls int
}

func (f *fakeDenseIndex) EnsureReady(ctx context.Context, dims int) error { return nil }

func (f *fakeDenseIndex) Upsert(ctx context.Context, points []vector.Point) error { return nil }

func (f *fakeDenseIndex) Search(ctx context.Context, vec []float32, k int, filter *vector.SearchFilter) ([]vector.Hit, error) {
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if filter == nil || len(filter.ItemIDs) == 0 {
		return f.hits, nil
	}
	allowed := make(map[string]bool, len(filter.ItemIDs))
	for _, id := range filter.ItemIDs {
		allowed[id] = true
	}
	var out []vector.Hit
	for _, h := range f.hits {
		if allowed[h.ItemID] {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeDenseIndex) DeleteByItem(ctx context.Context, itemID string) error { return nil }

func (f *fakeDenseIndex) Count(ctx context.Context) (int64, error) { return 0, nil }

func (f *fakeDenseIndex) Drop(ctx context.Context) error { return nil }

func (f *fakeDenseIndex) Name() string { return "fake-index" }

func (f *fakeDenseIndex) Close() error { return nil }

// =============================================================================
// FIXTURES
// =============================================================================

func openSearchLibrary(t *testing.T) *library.Library {
	t.Helper()
	lib, err := library.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open library: %v", err)
	}
	t.Cleanup(func() { lib.Close() })
	return lib
}

// seedIndexedChunk walks one item far enough through the lifecycle to
// put a single indexed chunk in the corpus, and returns the item.
func seedIndexedChunk(t *testing.T, lib *library.Library, source, title, url, chunkID, text string) *library.Item {
	t.Helper()

	item := &library.Item{Source: source, Kind: "rss", URL: url, Title: title, Summary: text}
	if _, err := lib.UpsertItem(item); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	if err := lib.UpdateItemStatus(item.ID, library.StatusShortlisted); err != nil {
		t.Fatalf("UpdateItemStatus: %v", err)
	}

	doc := &library.Document{ItemID: item.ID, Content: text, ExtractedWith: "readability"}
	if err := lib.SaveDocument(doc); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	if err := lib.SaveChunks(doc.ID, item.ID, []*library.Chunk{{ID: chunkID, Text: text, TokenCount: 20}}); err != nil {
		t.Fatalf("SaveChunks: %v", err)
	}
	if err := lib.MarkChunksIndexed([]string{chunkID}); err != nil {
		t.Fatalf("MarkChunksIndexed: %v", err)
	}
	return item
}

func testRetrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{DenseK: 24, SparseK: 24, RRFK: 60, FinalK: 8}
}

// =============================================================================
// SEARCH TESTS
// =============================================================================

func TestSearch_FusesBothLegs(t *testing.T) {
	lib := openSearchLibrary(t)
	seedIndexedChunk(t, lib, "nejm", "Semaglutide weight trial", "https://example.org/sema",
		"c-sema", "Semaglutide produced sustained weight loss over 68 weeks.")
	itemStatin := seedIndexedChunk(t, lib, "lancet", "Statin meta-analysis", "https://example.org/statin",
		"c-statin", "Statin therapy lowered LDL cholesterol across 27 trials.")
	itemSleep := seedIndexedChunk(t, lib, "bmj", "Sleep survey", "https://example.org/sleep",
		"c-sleep", "The sleep questionnaire covered bedtime routines.")

	index := &fakeDenseIndex{hits: []vector.Hit{
		{ChunkID: "c-statin", ItemID: itemStatin.ID, Score: 0.91},
		{ChunkID: "c-sleep", ItemID: itemSleep.ID, Score: 0.74},
	}}
	s := NewSearcher(lib, &fakeEngine{vec: []float32{0.1, 0.2}}, index, nil, testRetrievalConfig())

	results, err := s.Search(context.Background(), "statin LDL cholesterol", Options{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) < 2 {
		t.Fatalf("got %d results, want at least 2", len(results))
	}

	// c-statin ranks in both legs, so fusion must put it first
	top := results[0]
	if top.ChunkID != "c-statin" {
		t.Errorf("top result = %s, want c-statin", top.ChunkID)
	}
	if top.Title != "Statin meta-analysis" || top.Source != "lancet" || top.URL != "https://example.org/statin" {
		t.Errorf("item metadata not joined: %+v", top)
	}
	if top.DenseScore != 0.91 {
		t.Errorf("dense score = %v, want 0.91", top.DenseScore)
	}
	if top.SparseScore <= 0 {
		t.Errorf("sparse score = %v, want > 0", top.SparseScore)
	}
	if top.Reranked {
		t.Error("no reranker configured, Reranked should be false")
	}
}

func TestSearch_EmptyCorpus(t *testing.T) {
	lib := openSearchLibrary(t)
	index := &fakeDenseIndex{}
	s := NewSearcher(lib, &fakeEngine{vec: []float32{0.1}}, index, nil, testRetrievalConfig())

	results, err := s.Search(context.Background(), "anything", Options{})
	if err != nil {
		t.Fatalf("Search on empty corpus: %v", err)
	}
	if results != nil {
		t.Errorf("got %d results, want none", len(results))
	}
	if index.searchCalls != 0 {
		t.Error("dense index should not be queried when the corpus is empty")
	}
}

func TestSearch_DenseFailureDegradesToSparse(t *testing.T) {
	lib := openSearchLibrary(t)
	seedIndexedChunk(t, lib, "nejm", "Statin meta-analysis", "https://example.org/statin",
		"c-statin", "Statin therapy lowered LDL cholesterol across 27 trials.")

	index := &fakeDenseIndex{searchErr: errors.New("qdrant unreachable")}
	s := NewSearcher(lib, &fakeEngine{vec: []float32{0.1}}, index, nil, testRetrievalConfig())

	results, err := s.Search(context.Background(), "statin cholesterol", Options{})
	if err != nil {
		t.Fatalf("Search should degrade, not fail: %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != "c-statin" {
		t.Errorf("sparse-only results = %+v, want just c-statin", results)
	}
}

func TestSearch_EmbedFailureDegradesToSparse(t *testing.T) {
	lib := openSearchLibrary(t)
	seedIndexedChunk(t, lib, "nejm", "Statin meta-analysis", "https://example.org/statin",
		"c-statin", "Statin therapy lowered LDL cholesterol across 27 trials.")

	index := &fakeDenseIndex{}
	s := NewSearcher(lib, &fakeEngine{err: errors.New("embedding api down")}, index, nil, testRetrievalConfig())

	results, err := s.Search(context.Background(), "statin", Options{})
	if err != nil {
		t.Fatalf("Search should degrade, not fail: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
	if index.searchCalls != 0 {
		t.Error("embed failure should stop the dense leg before index search")
	}
}

func TestSearch_NoMatchReturnsEmpty(t *testing.T) {
	lib := openSearchLibrary(t)
	seedIndexedChunk(t, lib, "nejm", "Statin meta-analysis", "https://example.org/statin",
		"c-statin", "Statin therapy lowered LDL cholesterol.")

	s := NewSearcher(lib, &fakeEngine{vec: []float32{0.1}}, &fakeDenseIndex{}, nil, testRetrievalConfig())

	results, err := s.Search(context.Background(), "unrelated astronomy telescope", Options{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results for a query matching nothing, want 0", len(results))
	}
}

func TestSearch_ItemFilter(t *testing.T) {
	lib := openSearchLibrary(t)
	itemSema := seedIndexedChunk(t, lib, "nejm", "Semaglutide trial", "https://example.org/sema",
		"c-sema", "Semaglutide therapy produced weight loss.")
	itemStatin := seedIndexedChunk(t, lib, "lancet", "Statin therapy review", "https://example.org/statin",
		"c-statin", "Statin therapy lowered LDL cholesterol.")

	index := &fakeDenseIndex{hits: []vector.Hit{
		{ChunkID: "c-sema", ItemID: itemSema.ID, Score: 0.8},
		{ChunkID: "c-statin", ItemID: itemStatin.ID, Score: 0.7},
	}}
	s := NewSearcher(lib, &fakeEngine{vec: []float32{0.1}}, index, nil, testRetrievalConfig())

	// "therapy" matches both chunks; the filter must keep semaglutide only
	results, err := s.Search(context.Background(), "therapy", Options{ItemIDs: []string{itemSema.ID}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("filtered search should still find the semaglutide chunk")
	}
	for _, r := range results {
		if r.ItemID != itemSema.ID {
			t.Errorf("result from item %s leaked through the filter", r.ItemID)
		}
	}
}

func TestSearch_LimitCapsResults(t *testing.T) {
	lib := openSearchLibrary(t)
	for i := 0; i < 4; i++ {
		seedIndexedChunk(t, lib, "nejm", fmt.Sprintf("Aspirin trial %d", i),
			fmt.Sprintf("https://example.org/aspirin-%d", i),
			fmt.Sprintf("c-aspirin-%d", i),
			fmt.Sprintf("Aspirin trial number %d reported outcomes.", i))
	}

	s := NewSearcher(lib, &fakeEngine{vec: []float32{0.1}}, &fakeDenseIndex{}, nil, testRetrievalConfig())

	results, err := s.Search(context.Background(), "aspirin outcomes", Options{Limit: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results with Limit=2, want 2", len(results))
	}
}

// =============================================================================
// RERANK TESTS
// =============================================================================

func testReranker(serverURL string) *CohereReranker {
	rr := NewCohereReranker(config.RerankConfig{Enabled: true, APIKey: "test-key"}, time.Second)
	rr.baseURL = serverURL
	rr.retryBackoffBase = time.Millisecond
	return rr
}

func TestSearch_RerankReorders(t *testing.T) {
	lib := openSearchLibrary(t)
	// Both chunks score identically on "aspirin", so the fused order is
	// the ID tie-break: c-a1 then c-a2. The endpoint reverses it.
	seedIndexedChunk(t, lib, "nejm", "Aspirin primary prevention", "https://example.org/a1",
		"c-a1", "Aspirin reduced events in the primary prevention arm.")
	seedIndexedChunk(t, lib, "lancet", "Aspirin bleeding risk", "https://example.org/a2",
		"c-a2", "Aspirin raised bleeding risk in older adults.")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("Expected test-key authorization")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"results": [{"index": 1, "relevance_score": 0.99}, {"index": 0, "relevance_score": 0.89}],
			"meta": {"billed_units": {"search_units": 1}}
		}`))
	}))
	defer server.Close()

	s := NewSearcher(lib, &fakeEngine{vec: []float32{0.1}}, &fakeDenseIndex{}, testReranker(server.URL), testRetrievalConfig())

	results, err := s.Search(context.Background(), "aspirin", Options{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ChunkID != "c-a2" || results[1].ChunkID != "c-a1" {
		t.Errorf("reranked order = [%s %s], want [c-a2 c-a1]", results[0].ChunkID, results[1].ChunkID)
	}
	if !results[0].Reranked {
		t.Error("results should be marked reranked")
	}
	if results[0].Score != 0.99 {
		t.Errorf("top score = %v, want the rerank relevance 0.99", results[0].Score)
	}
}

func TestSearch_RerankFailureKeepsFusedOrder(t *testing.T) {
	lib := openSearchLibrary(t)
	seedIndexedChunk(t, lib, "nejm", "Aspirin primary prevention", "https://example.org/a1",
		"c-a1", "Aspirin reduced events in the primary prevention arm.")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message": "internal error"}`))
	}))
	defer server.Close()

	s := NewSearcher(lib, &fakeEngine{vec: []float32{0.1}}, &fakeDenseIndex{}, testReranker(server.URL), testRetrievalConfig())

	results, err := s.Search(context.Background(), "aspirin", Options{})
	if err != nil {
		t.Fatalf("Search should keep fused order on rerank failure: %v", err)
	}
	if len(results) != 1 || results[0].Reranked {
		t.Errorf("results = %+v, want one unreranked hit", results)
	}
}

func TestNewCohereReranker_DisabledOrKeyless(t *testing.T) {
	if rr := NewCohereReranker(config.RerankConfig{Enabled: false, APIKey: "k"}, time.Second); rr != nil {
		t.Error("disabled rerank should produce a nil reranker")
	}
	if rr := NewCohereReranker(config.RerankConfig{Enabled: true}, time.Second); rr != nil {
		t.Error("missing API key should produce a nil reranker")
	}
}

func TestCohereReranker_RetryOn429(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"results": [{"index": 0, "relevance_score": 0.5}]}`))
	}))
	defer server.Close()

	rr := testReranker(server.URL)
	ranked, err := rr.Rerank(context.Background(), "q", []string{"doc"})
	if err != nil {
		t.Fatalf("Rerank after 429 retry: %v", err)
	}
	if attempts != 2 {
		t.Errorf("server saw %d attempts, want 2 (429 then success)", attempts)
	}
	if len(ranked) != 1 || ranked[0].Index != 0 {
		t.Errorf("ranked = %+v, want one result for index 0", ranked)
	}
}

func TestCohereReranker_EmptyDocuments(t *testing.T) {
	rr := NewCohereReranker(config.RerankConfig{Enabled: true, APIKey: "test-key"}, time.Second)
	ranked, err := rr.Rerank(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Rerank with no documents: %v", err)
	}
	if ranked != nil {
		t.Errorf("ranked = %+v, want nil", ranked)
	}
}
