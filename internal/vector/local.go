package vector

import (
	"context"
	"errors"
	"fmt"

	"pulsepress/internal/embedding"
	"pulsepress/internal/library"
	"pulsepress/internal/logging"
)

// errAccelDisabled marks builds without the sqlite_vec tag.
var errAccelDisabled = errors.New("sqlite-vec acceleration not built")

// =============================================================================
// LOCAL DENSE INDEX
// =============================================================================

// LocalIndex keeps chunk embeddings in the library database and searches
// them by brute-force cosine similarity. Builds tagged sqlite_vec add a
// vec0 sidecar for indexed KNN; everything falls back to brute force when
// the sidecar is unavailable.
type LocalIndex struct {
	lib   *library.Library
	accel *accelIndex
	dims  int
}

// NewLocalIndex creates a local dense index over the library.
func NewLocalIndex(lib *library.Library) *LocalIndex {
	return &LocalIndex{lib: lib}
}

// EnsureReady records the dimensionality and opens the sidecar when built in.
func (x *LocalIndex) EnsureReady(ctx context.Context, dims int) error {
	x.dims = dims
	if x.accel != nil {
		return nil
	}

	accel, err := openAccel(x.lib.Path(), dims)
	if err != nil {
		if !errors.Is(err, errAccelDisabled) {
			logging.Vector("sqlite-vec sidecar unavailable, using brute-force search: %v", err)
		}
		return nil
	}
	x.accel = accel
	logging.Vector("sqlite-vec sidecar active (dims=%d)", dims)
	return nil
}

// Upsert persists embeddings to the library, mirroring them into the
// sidecar when active. The library copy is the source of truth.
func (x *LocalIndex) Upsert(ctx context.Context, points []Point) error {
	rows := make([]library.EmbeddingRow, len(points))
	for i, p := range points {
		rows[i] = library.EmbeddingRow{ChunkID: p.ChunkID, ItemID: p.ItemID, Vector: p.Vector}
	}
	if err := x.lib.SaveEmbeddings(rows); err != nil {
		return fmt.Errorf("failed to save embeddings: %w", err)
	}

	if x.accel != nil {
		if err := x.accel.upsert(points); err != nil {
			logging.Vector("sqlite-vec upsert failed, disabling acceleration: %v", err)
			x.accel.close()
			x.accel = nil
		}
	}
	return nil
}

// Search returns the k nearest chunks.
func (x *LocalIndex) Search(ctx context.Context, vector []float32, k int, filter *SearchFilter) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}

	// Filtered searches take the brute-force path; the sidecar holds no
	// item metadata.
	if x.accel != nil && filter == nil {
		hits, err := x.accel.search(vector, k)
		if err == nil {
			return hits, nil
		}
		logging.Vector("sqlite-vec search failed, falling back to brute force: %v", err)
	}

	var itemIDs []string
	var tag string
	if filter != nil {
		itemIDs = filter.ItemIDs
		tag = filter.Tag
	}

	rows, err := x.lib.LoadEmbeddings(itemIDs, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	corpus := make([][]float32, len(rows))
	for i, row := range rows {
		corpus[i] = row.Vector
	}

	results, err := embedding.FindTopK(vector, corpus, k)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			ChunkID: rows[r.Index].ChunkID,
			ItemID:  rows[r.Index].ItemID,
			Score:   r.Similarity,
		}
	}
	return hits, nil
}

// DeleteByItem removes an item's embeddings.
func (x *LocalIndex) DeleteByItem(ctx context.Context, itemID string) error {
	if err := x.lib.DeleteEmbeddingsByItem(itemID); err != nil {
		return err
	}
	if x.accel != nil {
		if err := x.accel.deleteByItem(itemID); err != nil {
			logging.Vector("sqlite-vec delete failed: %v", err)
		}
	}
	return nil
}

// Count returns the number of stored embeddings.
func (x *LocalIndex) Count(ctx context.Context) (int64, error) {
	return x.lib.CountEmbeddings()
}

// Drop clears all embeddings and resets chunk index flags.
func (x *LocalIndex) Drop(ctx context.Context) error {
	if err := x.lib.ClearEmbeddings(); err != nil {
		return err
	}
	if x.accel != nil {
		if err := x.accel.drop(); err != nil {
			logging.Vector("sqlite-vec drop failed: %v", err)
		}
	}
	return nil
}

// Name identifies the backend.
func (x *LocalIndex) Name() string {
	if x.accel != nil {
		return "local:sqlite-vec"
	}
	return "local:brute-force"
}

// Close releases the sidecar if open.
func (x *LocalIndex) Close() error {
	if x.accel != nil {
		err := x.accel.close()
		x.accel = nil
		return err
	}
	return nil
}
