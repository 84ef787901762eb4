package retrieval

import "sort"

// =============================================================================
// RECIPROCAL RANK FUSION
// =============================================================================

// rankedHit is a chunk's position in one retrieval leg's ranking.
type rankedHit struct {
	ChunkID string
	ItemID  string
	Score   float64 // the leg's native score, kept for display
}

// fusedHit carries a chunk through fusion and rerank.
type fusedHit struct {
	ChunkID string
	ItemID  string
	Fused   float64
	Dense   float64
	Sparse  float64
}

// fuseRRF merges leg rankings with reciprocal rank fusion:
// each list contributes 1/(k + rank + 1) per chunk, summed across lists.
// Native scores never mix, only positions do, so the wildly different
// scales of cosine similarity and BM25 cannot drown each other out.
// Ties break on chunk ID for deterministic output.
func fuseRRF(k int, dense, sparse []rankedHit) []fusedHit {
	if k <= 0 {
		k = 60
	}

	byID := make(map[string]*fusedHit, len(dense)+len(sparse))

	for rank, h := range dense {
		f := byID[h.ChunkID]
		if f == nil {
			f = &fusedHit{ChunkID: h.ChunkID, ItemID: h.ItemID}
			byID[h.ChunkID] = f
		}
		f.Fused += 1.0 / float64(k+rank+1)
		f.Dense = h.Score
	}

	for rank, h := range sparse {
		f := byID[h.ChunkID]
		if f == nil {
			f = &fusedHit{ChunkID: h.ChunkID, ItemID: h.ItemID}
			byID[h.ChunkID] = f
		}
		f.Fused += 1.0 / float64(k+rank+1)
		f.Sparse = h.Score
	}

	fused := make([]fusedHit, 0, len(byID))
	for _, f := range byID {
		fused = append(fused, *f)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Fused == fused[j].Fused {
			return fused[i].ChunkID < fused[j].ChunkID
		}
		return fused[i].Fused > fused[j].Fused
	})

	return fused
}
