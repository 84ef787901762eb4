// Package feed ingests content into the library: RSS subscriptions via
// gofeed, PubMed queries via the NCBI E-utilities, and full-text
// extraction with an Apify fallback for pages that only render in a
// browser.
package feed

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
	"pulsepress/internal/logging"
)

// fetchParallelism bounds concurrent source fetches. Feeds are cheap but
// journal servers throttle aggressive clients.
const fetchParallelism = 4

// =============================================================================
// FETCHER
// =============================================================================

// Fetcher pulls items from configured sources into the library.
type Fetcher struct {
	lib     *library.Library
	cfg     config.FeedsConfig
	pubmed  *PubMedClient
	timeout time.Duration
}

// NewFetcher creates a fetcher. timeout bounds each source fetch.
func NewFetcher(lib *library.Library, cfg config.FeedsConfig, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Fetcher{
		lib:     lib,
		cfg:     cfg,
		pubmed:  NewPubMedClient(cfg.NCBIAPIKey, timeout),
		timeout: timeout,
	}
}

// SourceResult reports one source's fetch outcome.
type SourceResult struct {
	Source   string
	Fetched  int
	Inserted int
	Err      error
}

// Stats aggregates a fetch run.
type Stats struct {
	Sources  int
	Fetched  int
	Inserted int
	Deduped  int
	Failed   int
	Results  []SourceResult
}

// FetchAll fetches every source concurrently and stores new items.
// A failing source is reported in the stats, not returned as an error,
// so one broken feed cannot block the rest of the run.
func (f *Fetcher) FetchAll(ctx context.Context, sources []config.FeedSource) (*Stats, error) {
	timer := logging.StartTimer(logging.CategoryFeed, "FetchAll")
	defer timer.Stop()

	stats := &Stats{Sources: len(sources)}
	if len(sources) == 0 {
		return stats, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchParallelism)

	for _, source := range sources {
		source := source
		g.Go(func() error {
			res := f.fetchSource(gctx, source)

			mu.Lock()
			defer mu.Unlock()
			stats.Results = append(stats.Results, res)
			if res.Err != nil {
				stats.Failed++
				logging.Get(logging.CategoryFeed).Warn("source %s failed: %v", source.Name, res.Err)
				return nil
			}
			stats.Fetched += res.Fetched
			stats.Inserted += res.Inserted
			stats.Deduped += res.Fetched - res.Inserted
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	sort.Slice(stats.Results, func(i, j int) bool {
		return stats.Results[i].Source < stats.Results[j].Source
	})

	logging.Feed("fetch run: %d sources, %d fetched, %d new, %d deduped, %d failed",
		stats.Sources, stats.Fetched, stats.Inserted, stats.Deduped, stats.Failed)
	return stats, nil
}

// fetchSource fetches one source and upserts its items.
func (f *Fetcher) fetchSource(ctx context.Context, source config.FeedSource) SourceResult {
	res := SourceResult{Source: source.Name}
	timer := logging.StartTimer(logging.CategoryFeed, "fetch:"+source.Name)
	defer timer.Stop()

	var items []*library.Item
	var err error

	switch source.Kind {
	case "rss":
		items, err = f.fetchRSS(ctx, source)
	case "pubmed":
		items, err = f.fetchPubMed(ctx, source)
	default:
		err = fmt.Errorf("unknown source kind: %s", source.Kind)
	}
	if err != nil {
		res.Err = err
		return res
	}

	res.Fetched = len(items)
	for _, item := range items {
		inserted, err := f.lib.UpsertItem(item)
		if err != nil {
			logging.Get(logging.CategoryFeed).Warn("failed to store %q from %s: %v",
				item.Title, source.Name, err)
			continue
		}
		if inserted {
			res.Inserted++
		}
	}

	logging.Feed("source %s: %d fetched, %d new", source.Name, res.Fetched, res.Inserted)
	return res
}

// fetchPubMed resolves a PubMed query to items: esearch for PMIDs, then
// efetch for article records.
func (f *Fetcher) fetchPubMed(ctx context.Context, source config.FeedSource) ([]*library.Item, error) {
	retmax := f.cfg.MaxItems
	if retmax <= 0 {
		retmax = 50
	}

	pmids, err := f.pubmed.Search(ctx, source.Query, source.Days, retmax)
	if err != nil {
		return nil, fmt.Errorf("pubmed search failed: %w", err)
	}
	if len(pmids) == 0 {
		logging.FeedDebug("pubmed source %s: query matched nothing", source.Name)
		return nil, nil
	}

	items, err := f.pubmed.Fetch(ctx, pmids)
	if err != nil {
		return nil, fmt.Errorf("pubmed fetch failed: %w", err)
	}

	for _, item := range items {
		item.Source = source.Name
		item.Tags = source.Tags
	}
	return items, nil
}

// maxItems caps a fetched batch at the configured per-source limit.
func (f *Fetcher) maxItems() int {
	if f.cfg.MaxItems <= 0 {
		return 50
	}
	return f.cfg.MaxItems
}

// truncate shortens s for storage, marking the cut.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
