// Package index drives the embedding pipeline: chunk the documents of
// shortlisted items, embed the chunks in batches, upsert them into the
// dense index, and advance fully indexed items.
package index

import (
	"context"
	"fmt"

	"pulsepress/internal/chunk"
	"pulsepress/internal/config"
	"pulsepress/internal/embedding"
	"pulsepress/internal/library"
	"pulsepress/internal/logging"
	"pulsepress/internal/vector"
)

// indexRunLimit caps the items considered per run. Repeated runs drain
// a backlog larger than this.
const indexRunLimit = 1000

// =============================================================================
// INDEXER
// =============================================================================

// Indexer owns the chunk-embed-upsert pipeline.
type Indexer struct {
	lib     *library.Library
	engine  embedding.Engine
	dense   vector.DenseIndex
	chunker *chunk.Chunker
	batch   int
}

// NewIndexer builds the pipeline. The engine should be constructed with
// the document task.
func NewIndexer(lib *library.Library, engine embedding.Engine, dense vector.DenseIndex, cfg *config.Config) *Indexer {
	batch := cfg.Embedding.BatchSize
	if batch <= 0 {
		batch = 64
	}

	return &Indexer{
		lib:     lib,
		engine:  engine,
		dense:   dense,
		chunker: chunk.NewChunker(cfg.Embedding.ChunkTokens, cfg.Embedding.ChunkOverlap),
		batch:   batch,
	}
}

// Stats aggregates one indexing run.
type Stats struct {
	ItemsChunked int // items whose documents were (re)chunked
	ChunksAdded  int // chunks written by the chunking phase
	Embedded     int // chunks embedded and upserted
	Failed       int // items that could not be chunked
}

// Run executes the pipeline. rebuild drops the collection and clears the
// indexed flags first, so everything re-embeds from the library.
func (ix *Indexer) Run(ctx context.Context, rebuild bool) (*Stats, error) {
	timer := logging.StartTimer(logging.CategoryVector, "IndexRun")
	defer timer.Stop()

	if hc, ok := ix.engine.(embedding.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return nil, fmt.Errorf("embedding engine unavailable: %w", err)
		}
	}

	if rebuild {
		logging.Vector("Rebuild requested: dropping %s collection", ix.dense.Name())
		if err := ix.dense.Drop(ctx); err != nil {
			logging.Get(logging.CategoryVector).Warn("drop failed (collection may not exist): %v", err)
		}
		if err := ix.lib.ResetChunkIndex(); err != nil {
			return nil, fmt.Errorf("failed to reset index state: %w", err)
		}
	}

	if err := ix.dense.EnsureReady(ctx, ix.engine.Dimensions()); err != nil {
		return nil, fmt.Errorf("dense index not ready: %w", err)
	}

	stats := &Stats{}
	if err := ix.chunkDocuments(stats); err != nil {
		return stats, err
	}
	if err := ix.embedPending(ctx, stats); err != nil {
		return stats, err
	}

	logging.Vector("index run: %d items chunked, %d chunks added, %d embedded, %d failed",
		stats.ItemsChunked, stats.ChunksAdded, stats.Embedded, stats.Failed)
	return stats, nil
}

// chunkDocuments writes chunks for documents that have none. Indexed
// items are revisited too: a re-extracted document drops its old chunks
// and needs new ones.
func (ix *Indexer) chunkDocuments(stats *Stats) error {
	for _, status := range []string{library.StatusShortlisted, library.StatusIndexed} {
		items, err := ix.lib.ListItems(status, indexRunLimit)
		if err != nil {
			return fmt.Errorf("failed to list %s items: %w", status, err)
		}

		for _, item := range items {
			doc, err := ix.lib.GetDocument(item.ID)
			if err != nil {
				logging.Get(logging.CategoryVector).Warn("failed to load document for %s: %v", item.ID, err)
				stats.Failed++
				continue
			}
			if doc == nil {
				logging.VectorDebug("item %s has no document yet, skipping", item.ID)
				continue
			}

			existing, err := ix.lib.ChunksForDocument(doc.ID)
			if err != nil {
				logging.Get(logging.CategoryVector).Warn("failed to check chunks for %s: %v", doc.ID, err)
				stats.Failed++
				continue
			}
			if len(existing) > 0 {
				continue
			}

			pieces, err := ix.chunker.Split(doc.Content)
			if err != nil {
				logging.Get(logging.CategoryVector).Warn("failed to chunk item %s: %v", item.ID, err)
				stats.Failed++
				continue
			}
			if len(pieces) == 0 {
				continue
			}

			chunks := make([]*library.Chunk, len(pieces))
			for i, p := range pieces {
				chunks[i] = &library.Chunk{Text: p.Text, TokenCount: p.Tokens}
			}
			if err := ix.lib.SaveChunks(doc.ID, item.ID, chunks); err != nil {
				logging.Get(logging.CategoryVector).Warn("failed to save chunks for %s: %v", item.ID, err)
				stats.Failed++
				continue
			}

			stats.ItemsChunked++
			stats.ChunksAdded += len(chunks)
			logging.VectorDebug("chunked item %s into %d pieces", item.ID, len(chunks))
		}
	}
	return nil
}

// embedPending embeds and upserts unindexed chunks in batches. Embedding
// failures abort the run: they are systemic (bad key, provider down) and
// every later batch would hit the same wall.
func (ix *Indexer) embedPending(ctx context.Context, stats *Stats) error {
	chunks, err := ix.lib.UnindexedChunks(0)
	if err != nil {
		return fmt.Errorf("failed to list unindexed chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	items := make(map[string]*library.Item)

	for start := 0; start < len(chunks); start += ix.batch {
		end := start + ix.batch
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vecs, err := ix.engine.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch failed: %w", err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("embed batch returned %d vectors for %d chunks", len(vecs), len(batch))
		}

		points := make([]vector.Point, len(batch))
		ids := make([]string, len(batch))
		for i, c := range batch {
			info := ix.itemInfo(items, c.ItemID)
			points[i] = vector.Point{
				ChunkID: c.ID,
				ItemID:  c.ItemID,
				Vector:  vecs[i],
				Title:   info.Title,
				URL:     info.URL,
				Seq:     c.Seq,
			}
			ids[i] = c.ID
		}

		if err := ix.dense.Upsert(ctx, points); err != nil {
			return fmt.Errorf("dense upsert failed: %w", err)
		}
		if err := ix.lib.MarkChunksIndexed(ids); err != nil {
			return fmt.Errorf("failed to mark chunks indexed: %w", err)
		}

		stats.Embedded += len(batch)
		logging.VectorDebug("embedded batch of %d chunks (%d/%d)", len(batch), end, len(chunks))
	}
	return nil
}

// itemInfo caches item lookups for point payloads. Missing items yield
// an empty payload rather than an error.
func (ix *Indexer) itemInfo(cache map[string]*library.Item, id string) *library.Item {
	if item, ok := cache[id]; ok {
		return item
	}

	item, err := ix.lib.GetItem(id)
	if err != nil || item == nil {
		item = &library.Item{ID: id}
	}
	cache[id] = item
	return item
}
