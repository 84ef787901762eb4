package retrieval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"pulsepress/internal/config"
	"pulsepress/internal/embedding"
	"pulsepress/internal/library"
	"pulsepress/internal/logging"
	"pulsepress/internal/vector"
)

// =============================================================================
// HYBRID SEARCHER
// =============================================================================

// Searcher runs hybrid retrieval over the indexed chunk corpus.
type Searcher struct {
	lib    *library.Library
	engine embedding.Engine
	index  vector.DenseIndex
	rerank *CohereReranker
	cfg    config.RetrievalConfig
}

// NewSearcher wires the hybrid pipeline. engine embeds queries, index is
// the dense backend, rerank may be nil (fused order is kept).
func NewSearcher(lib *library.Library, engine embedding.Engine, index vector.DenseIndex, rerank *CohereReranker, cfg config.RetrievalConfig) *Searcher {
	return &Searcher{
		lib:    lib,
		engine: engine,
		index:  index,
		rerank: rerank,
		cfg:    cfg,
	}
}

// Options narrows or resizes a search.
type Options struct {
	// Limit overrides retrieval.final_k when positive.
	Limit int

	// ItemIDs restricts both legs to chunks of these items.
	ItemIDs []string
}

// Result is one retrieved chunk with item metadata joined in.
type Result struct {
	ChunkID string
	ItemID  string
	Seq     int
	Text    string

	Title  string
	URL    string
	Source string

	// Score is the ranking score of the final stage: Cohere relevance
	// when reranked, RRF sum otherwise.
	Score       float64
	DenseScore  float64
	SparseScore float64
	Reranked    bool
}

// Search runs both retrieval legs concurrently, fuses their rankings,
// optionally reranks, and returns the top results with item metadata.
// An empty corpus yields an empty result. A single failed leg degrades
// to the surviving leg; only both legs failing is an error.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	timer := logging.StartTimer(logging.CategoryRetrieval, "Search")
	defer timer.Stop()

	corpus, err := s.lib.IndexedChunks()
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	corpus = filterByItems(corpus, opts.ItemIDs)
	if len(corpus) == 0 {
		logging.Retrieval("Search %q: empty corpus, nothing to retrieve", query)
		return nil, nil
	}

	denseK := s.cfg.DenseK
	if denseK <= 0 {
		denseK = 24
	}
	sparseK := s.cfg.SparseK
	if sparseK <= 0 {
		sparseK = 24
	}

	var (
		dense, sparse       []rankedHit
		denseErr, sparseErr error
	)

	// Both legs run concurrently; a leg failure degrades to the other
	// leg instead of failing the search.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		dense, denseErr = s.denseLeg(gctx, query, denseK, opts.ItemIDs)
		if denseErr != nil {
			logging.RetrievalWarn("dense leg failed, degrading to sparse-only: %v", denseErr)
		}
		return nil
	})

	g.Go(func() error {
		sparse, sparseErr = s.sparseLeg(corpus, query, sparseK)
		if sparseErr != nil {
			logging.RetrievalWarn("sparse leg failed, degrading to dense-only: %v", sparseErr)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if denseErr != nil && sparseErr != nil {
		return nil, fmt.Errorf("both retrieval legs failed: dense: %v; sparse: %v", denseErr, sparseErr)
	}

	fused := fuseRRF(s.cfg.RRFK, dense, sparse)
	logging.RetrievalDebug("Search %q: dense=%d sparse=%d fused=%d",
		query, len(dense), len(sparse), len(fused))
	if len(fused) == 0 {
		return nil, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.FinalK
	}
	if limit <= 0 {
		limit = 8
	}

	results := s.hydrate(fused, corpus)
	results = s.maybeRerank(ctx, query, results)
	if len(results) > limit {
		results = results[:limit]
	}

	s.joinItems(results)

	logging.Retrieval("Search %q: %d results (reranked=%v)",
		query, len(results), len(results) > 0 && results[0].Reranked)
	return results, nil
}

// denseLeg embeds the query and searches the dense index.
func (s *Searcher) denseLeg(ctx context.Context, query string, k int, itemIDs []string) ([]rankedHit, error) {
	vec, err := s.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}

	var filter *vector.SearchFilter
	if len(itemIDs) > 0 {
		filter = &vector.SearchFilter{ItemIDs: itemIDs}
	}

	hits, err := s.index.Search(ctx, vec, k, filter)
	if err != nil {
		return nil, fmt.Errorf("dense search failed: %w", err)
	}

	ranked := make([]rankedHit, 0, len(hits))
	for _, h := range hits {
		ranked = append(ranked, rankedHit{ChunkID: h.ChunkID, ItemID: h.ItemID, Score: h.Score})
	}
	return ranked, nil
}

// sparseLeg builds the BM25 index over the corpus and scores the query.
func (s *Searcher) sparseLeg(corpus []*library.Chunk, query string, k int) ([]rankedHit, error) {
	bm25 := NewBM25()
	bm25.Index(corpus)

	hits := bm25.TopK(query, k)
	ranked := make([]rankedHit, 0, len(hits))
	for _, h := range hits {
		ranked = append(ranked, rankedHit{ChunkID: h.ChunkID, ItemID: h.ItemID, Score: h.Score})
	}
	return ranked, nil
}

// hydrate attaches chunk text to fused hits. Chunks usually come from
// the in-memory corpus; anything missing (stale dense index entries)
// is fetched from the library, and dropped if gone.
func (s *Searcher) hydrate(fused []fusedHit, corpus []*library.Chunk) []Result {
	byID := make(map[string]*library.Chunk, len(corpus))
	for _, c := range corpus {
		byID[c.ID] = c
	}

	var missing []string
	for _, f := range fused {
		if _, ok := byID[f.ChunkID]; !ok {
			missing = append(missing, f.ChunkID)
		}
	}
	if len(missing) > 0 {
		logging.RetrievalDebug("hydrating %d chunks missing from corpus (stale index entries?)", len(missing))
		if fetched, err := s.lib.GetChunks(missing); err == nil {
			for _, c := range fetched {
				byID[c.ID] = c
			}
		}
	}

	results := make([]Result, 0, len(fused))
	for _, f := range fused {
		c, ok := byID[f.ChunkID]
		if !ok {
			continue
		}
		results = append(results, Result{
			ChunkID:     f.ChunkID,
			ItemID:      f.ItemID,
			Seq:         c.Seq,
			Text:        c.Text,
			Score:       f.Fused,
			DenseScore:  f.Dense,
			SparseScore: f.Sparse,
		})
	}
	return results
}

// maybeRerank reorders results with Cohere when configured. Any rerank
// failure keeps the fused order: a degraded ranking beats no answer.
func (s *Searcher) maybeRerank(ctx context.Context, query string, results []Result) []Result {
	if s.rerank == nil || len(results) == 0 {
		return results
	}

	docs := make([]string, len(results))
	for i, r := range results {
		docs[i] = r.Text
	}

	ranked, err := s.rerank.Rerank(ctx, query, docs)
	if err != nil {
		logging.RetrievalWarn("rerank failed, keeping fused order: %v", err)
		return results
	}

	reordered := make([]Result, 0, len(ranked))
	for _, rr := range ranked {
		if rr.Index < 0 || rr.Index >= len(results) {
			continue
		}
		r := results[rr.Index]
		r.Score = rr.Score
		r.Reranked = true
		reordered = append(reordered, r)
	}
	if len(reordered) == 0 {
		return results
	}
	return reordered
}

// joinItems fills item metadata, one library read per distinct item.
func (s *Searcher) joinItems(results []Result) {
	items := make(map[string]*library.Item)
	for i := range results {
		item, ok := items[results[i].ItemID]
		if !ok {
			var err error
			item, err = s.lib.GetItem(results[i].ItemID)
			if err != nil {
				continue
			}
			items[results[i].ItemID] = item
		}
		if item != nil {
			results[i].Title = item.Title
			results[i].URL = item.URL
			results[i].Source = item.Source
		}
	}
}

func filterByItems(chunks []*library.Chunk, itemIDs []string) []*library.Chunk {
	if len(itemIDs) == 0 {
		return chunks
	}
	allowed := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		allowed[id] = true
	}
	out := make([]*library.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if allowed[c.ItemID] {
			out = append(out, c)
		}
	}
	return out
}
