// Package main implements the indexing command for pulse.
package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pulsepress/internal/embedding"
	"pulsepress/internal/index"
	"pulsepress/internal/vector"
)

var indexRebuild bool

// =============================================================================
// INDEX COMMAND
// =============================================================================

// indexCmd chunks, embeds and upserts shortlisted items
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Chunk and embed shortlisted items into the vector index",
	Long: `For every shortlisted item with an extracted document: split it into
token-sized chunks, embed them, and upsert the vectors into the dense index
(qdrant by default, or the local SQLite backend). Idempotent by content
hash, so re-running only processes what changed.

--rebuild drops the collection and re-embeds the whole library.`,
	RunE: runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg, ws)
	if err != nil {
		return err
	}
	defer lib.Close()

	engine, err := embedding.NewEngine(cfg.Embedding, embedding.TaskDocument)
	if err != nil {
		return err
	}
	dense, err := vector.New(cfg.Vector, lib)
	if err != nil {
		return err
	}
	defer dense.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx, flushUsage := withUsage(ctx, cfg, ws, "embedding")
	defer flushUsage()

	if indexRebuild {
		fmt.Println("Rebuilding: dropping the collection and re-embedding everything...")
	}
	stats, err := index.NewIndexer(lib, engine, dense, cfg).Run(ctx, indexRebuild)
	if err != nil {
		return err
	}

	fmt.Printf("%d items chunked (%d new chunks), %d chunks embedded",
		stats.ItemsChunked, stats.ChunksAdded, stats.Embedded)
	if stats.Failed > 0 {
		fmt.Printf(", %d items failed", stats.Failed)
	}
	fmt.Println()
	if stats.Embedded > 0 {
		fmt.Println("Next: pulse search \"<query>\" or pulse draft")
	}
	return nil
}

func init() {
	indexCmd.Flags().BoolVar(&indexRebuild, "rebuild", false, "Drop the collection and re-embed everything")

	rootCmd.AddCommand(indexCmd)
}
