// Package retrieval implements hybrid search over the library's chunk
// corpus: a BM25 sparse leg and a dense vector leg run concurrently,
// their rankings merge via reciprocal rank fusion, and an optional
// Cohere rerank stage reorders the fused candidates.
package retrieval

import (
	"math"
	"sort"

	"pulsepress/internal/library"
)

// =============================================================================
// BM25 SPARSE SCORER
// =============================================================================

// BM25 scores chunks against a query using the Okapi BM25 formula.
// The index is built in memory from the library corpus; at a few
// thousand chunks per workspace a rebuild per search run is cheap.
type BM25 struct {
	k1 float64
	b  float64

	avgDocLen float64
	docCount  int
	docFreq   map[string]int            // term -> number of chunks containing it
	termFreq  map[string]map[string]int // chunk id -> term -> count
	docLens   map[string]int            // chunk id -> token count
	idf       map[string]float64
	chunks    map[string]*library.Chunk
	order     []string // chunk ids in insertion order, for stable iteration
}

// NewBM25 creates a scorer with the standard parameters (k1=1.5, b=0.75).
func NewBM25() *BM25 {
	return &BM25{
		k1:       1.5,
		b:        0.75,
		docFreq:  make(map[string]int),
		termFreq: make(map[string]map[string]int),
		docLens:  make(map[string]int),
		idf:      make(map[string]float64),
		chunks:   make(map[string]*library.Chunk),
	}
}

// Index builds the inverted statistics for a chunk corpus. Two passes:
// document frequencies and lengths first, IDF second.
func (s *BM25) Index(chunks []*library.Chunk) {
	s.docCount = len(chunks)
	s.docFreq = make(map[string]int)
	s.termFreq = make(map[string]map[string]int, len(chunks))
	s.docLens = make(map[string]int, len(chunks))
	s.chunks = make(map[string]*library.Chunk, len(chunks))
	s.order = make([]string, 0, len(chunks))

	var totalLen int
	for _, c := range chunks {
		tokens := Tokenize(c.Text)
		s.docLens[c.ID] = len(tokens)
		s.chunks[c.ID] = c
		s.order = append(s.order, c.ID)
		totalLen += len(tokens)

		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		s.termFreq[c.ID] = tf
		for term := range tf {
			s.docFreq[term]++
		}
	}

	if s.docCount > 0 {
		s.avgDocLen = float64(totalLen) / float64(s.docCount)
	}

	s.idf = make(map[string]float64, len(s.docFreq))
	for term, df := range s.docFreq {
		// IDF = log((N - df + 0.5) / (df + 0.5) + 1)
		s.idf[term] = math.Log((float64(s.docCount)-float64(df)+0.5)/(float64(df)+0.5) + 1.0)
	}
}

// Size returns the number of indexed chunks.
func (s *BM25) Size() int {
	return s.docCount
}

// score computes the BM25 score of one chunk for pre-tokenized query terms.
func (s *BM25) score(queryTokens []string, chunkID string) float64 {
	tf := s.termFreq[chunkID]
	if tf == nil {
		return 0
	}
	docLen := float64(s.docLens[chunkID])

	var score float64
	for _, term := range queryTokens {
		f := float64(tf[term])
		if f == 0 {
			continue
		}
		idf := s.idf[term]
		numerator := f * (s.k1 + 1)
		denominator := f + s.k1*(1-s.b+s.b*docLen/s.avgDocLen)
		score += idf * (numerator / denominator)
	}
	return score
}

// SparseHit is one chunk scored by the sparse leg.
type SparseHit struct {
	ChunkID string
	ItemID  string
	Score   float64
}

// TopK returns the k best-scoring chunks for a query, best first.
// Chunks scoring zero are omitted; ties break on chunk ID so repeated
// searches return the same order.
func (s *BM25) TopK(query string, k int) []SparseHit {
	if s.docCount == 0 || k <= 0 {
		return nil
	}

	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	hits := make([]SparseHit, 0, s.docCount)
	for _, id := range s.order {
		sc := s.score(queryTokens, id)
		if sc <= 0 {
			continue
		}
		hits = append(hits, SparseHit{
			ChunkID: id,
			ItemID:  s.chunks[id].ItemID,
			Score:   sc,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].ChunkID < hits[j].ChunkID
		}
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
