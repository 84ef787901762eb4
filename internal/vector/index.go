// Package vector provides the dense index behind hybrid retrieval: chunk
// embeddings stored in Qdrant or, for serverless setups, in the library
// database itself.
package vector

import (
	"context"
	"fmt"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
	"pulsepress/internal/logging"
)

// Point is one embedded chunk headed for the dense index. The payload
// fields ride along so the collection is inspectable without the library.
type Point struct {
	ChunkID string
	ItemID  string
	Vector  []float32
	Title   string
	URL     string
	Seq     int
}

// Hit identifies a chunk returned by dense search. Callers join chunk text
// and item metadata from the library.
type Hit struct {
	ChunkID string
	ItemID  string
	Score   float64
}

// SearchFilter narrows dense search to specific items or an item tag.
// A nil filter searches the whole collection.
type SearchFilter struct {
	ItemIDs []string
	Tag     string
}

// DenseIndex stores and searches chunk embeddings.
type DenseIndex interface {
	// EnsureReady prepares the backing collection for vectors of the
	// given dimensionality.
	EnsureReady(ctx context.Context, dims int) error

	// Upsert writes points, replacing any with the same chunk ID.
	Upsert(ctx context.Context, points []Point) error

	// Search returns the k nearest chunks by cosine similarity.
	Search(ctx context.Context, vector []float32, k int, filter *SearchFilter) ([]Hit, error)

	// DeleteByItem removes all points belonging to an item.
	DeleteByItem(ctx context.Context, itemID string) error

	// Count returns the number of stored points.
	Count(ctx context.Context) (int64, error)

	// Drop destroys the collection; EnsureReady recreates it.
	Drop(ctx context.Context) error

	// Name identifies the backend for logs and status output.
	Name() string

	// Close releases backend connections.
	Close() error
}

// New creates the dense index for the configured backend.
func New(cfg config.VectorConfig, lib *library.Library) (DenseIndex, error) {
	switch cfg.Backend {
	case "qdrant":
		logging.Vector("Using qdrant dense index: %s:%d collection=%s",
			cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Collection)
		return NewQdrantIndex(cfg.Qdrant, cfg.Collection)
	case "local":
		logging.Vector("Using local dense index in library database")
		return NewLocalIndex(lib), nil
	default:
		return nil, fmt.Errorf("unsupported vector backend: %s (use 'qdrant' or 'local')", cfg.Backend)
	}
}
