// Package main implements the intake commands for pulse: fetching feed
// items and extracting article text.
package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pulsepress/internal/config"
	"pulsepress/internal/feed"
	"pulsepress/internal/library"
)

var (
	fetchSourceKind string
	fetchFeedName   string

	extractItemID string
	extractLimit  int
)

// =============================================================================
// FETCH COMMAND
// =============================================================================

// fetchCmd pulls new items from the configured sources
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch new items from RSS and PubMed sources",
	Long: `Fetches every active source in feeds.yaml concurrently and stores new
items in the library. Items are deduplicated by normalized URL (or PMID), so
re-running is cheap. A broken source is reported without blocking the rest.

Examples:
  pulse fetch
  pulse fetch --source pubmed
  pulse fetch --feed nejm-current`,
	RunE: runFetch,
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}

	feeds, err := config.LoadFeedList(cfg.FeedsPath(ws))
	if err != nil {
		return err
	}

	sources := feeds.Active()
	if fetchFeedName != "" {
		src := feeds.FindSource(fetchFeedName)
		if src == nil {
			return fmt.Errorf("no source named %q in feeds.yaml (see 'pulse feeds')", fetchFeedName)
		}
		sources = []config.FeedSource{*src}
	}
	if fetchSourceKind != "" {
		var kept []config.FeedSource
		for _, s := range sources {
			if s.Kind == fetchSourceKind {
				kept = append(kept, s)
			}
		}
		sources = kept
	}
	if len(sources) == 0 {
		fmt.Println("Nothing to fetch. Check .pulse/feeds.yaml or your filters.")
		return nil
	}

	lib, err := openLibrary(cfg, ws)
	if err != nil {
		return err
	}
	defer lib.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	fetcher := feed.NewFetcher(lib, cfg.Feeds, cfg.GetFetchTimeout())
	stats, err := fetcher.FetchAll(ctx, sources)
	if err != nil {
		return err
	}

	for _, r := range stats.Results {
		if r.Err != nil {
			fmt.Printf("  ✗ %-24s %v\n", r.Source, r.Err)
			continue
		}
		fmt.Printf("  ✓ %-24s %d fetched, %d new\n", r.Source, r.Fetched, r.Inserted)
	}
	fmt.Printf("\n%d sources: %d items fetched, %d new, %d already known",
		stats.Sources, stats.Fetched, stats.Inserted, stats.Deduped)
	if stats.Failed > 0 {
		fmt.Printf(", %d sources failed", stats.Failed)
	}
	fmt.Println()
	if stats.Inserted > 0 {
		fmt.Println("Next: pulse triage")
	}
	return nil
}

// =============================================================================
// EXTRACT COMMAND
// =============================================================================

// extractCmd pulls full article text for shortlisted items
var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract full article text for shortlisted items",
	Long: `Downloads and reduces each item's page to article text, stored as the
item's document. PubMed items without a reachable page fall back to their
abstract; JS-heavy pages fall back to the Apify crawler when APIFY_TOKEN is
set. Unchanged pages are skipped by content hash.

By default runs over shortlisted items. Use --item to extract one item
regardless of status.`,
	RunE: runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg, ws)
	if err != nil {
		return err
	}
	defer lib.Close()

	var items []*library.Item
	if extractItemID != "" {
		item, err := resolveItem(lib, extractItemID)
		if err != nil {
			return err
		}
		items = []*library.Item{item}
	} else {
		items, err = lib.ListItems(library.StatusShortlisted, extractLimit)
		if err != nil {
			return err
		}
	}
	if len(items) == 0 {
		fmt.Println("No items to extract. Shortlist items first (pulse triage, pulse review).")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	extractor := feed.NewExtractor(cfg.Feeds, cfg.GetFetchTimeout())
	stats, err := extractor.ExtractItems(ctx, lib, items)
	if err != nil {
		return err
	}

	fmt.Printf("%d items processed: %d extracted, %d unchanged, %d failed\n",
		stats.Processed, stats.Extracted, stats.Unchanged, stats.Failed)
	if stats.Extracted > 0 {
		fmt.Println("Next: pulse index")
	}
	return nil
}

func init() {
	fetchCmd.Flags().StringVar(&fetchSourceKind, "source", "", "Only fetch sources of this kind (rss, pubmed)")
	fetchCmd.Flags().StringVar(&fetchFeedName, "feed", "", "Only fetch the named source")

	extractCmd.Flags().StringVar(&extractItemID, "item", "", "Extract a single item by ID")
	extractCmd.Flags().IntVar(&extractLimit, "limit", 0, "Max items to extract (0 = library default)")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(extractCmd)
}
