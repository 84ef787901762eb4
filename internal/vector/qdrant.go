package vector

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"pulsepress/internal/config"
	"pulsepress/internal/logging"
)

// =============================================================================
// QDRANT DENSE INDEX
// =============================================================================

// QdrantIndex stores chunk embeddings in a Qdrant collection over gRPC.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantIndex connects to Qdrant. The connection is lazy; the first
// operation surfaces reachability errors.
func NewQdrantIndex(cfg config.QdrantConfig, collection string) (*QdrantIndex, error) {
	if collection == "" {
		collection = "pulse_chunks"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantIndex{
		client:     client,
		collection: collection,
	}, nil
}

// EnsureReady creates the collection if it does not exist.
func (x *QdrantIndex) EnsureReady(ctx context.Context, dims int) error {
	existing, err := x.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, name := range existing {
		if name == x.collection {
			return nil
		}
	}

	err = x.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", x.collection, err)
	}

	logging.Vector("Created qdrant collection %s (dims=%d)", x.collection, dims)
	return nil
}

// Upsert writes points keyed by chunk ID.
func (x *QdrantIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ChunkID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]interface{}{
				"chunk_id": p.ChunkID,
				"item_id":  p.ItemID,
				"title":    p.Title,
				"url":      p.URL,
				"seq":      int64(p.Seq),
			}),
		}
	}

	_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: x.collection,
		Points:         qdrantPoints,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	logging.VectorDebug("Upserted %d points to %s", len(points), x.collection)
	return nil
}

// Search queries the k nearest neighbors.
func (x *QdrantIndex) Search(ctx context.Context, vector []float32, k int, filter *SearchFilter) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}

	limit := uint64(k)
	scored, err := x.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: x.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		Filter:         buildQdrantFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query failed: %w", err)
	}

	hits := make([]Hit, 0, len(scored))
	for _, point := range scored {
		payload := point.GetPayload()
		if payload == nil {
			continue
		}
		hit := Hit{Score: float64(point.GetScore())}
		if val, ok := payload["chunk_id"]; ok {
			hit.ChunkID = val.GetStringValue()
		}
		if val, ok := payload["item_id"]; ok {
			hit.ItemID = val.GetStringValue()
		}
		if hit.ChunkID == "" {
			continue
		}
		hits = append(hits, hit)
	}

	return hits, nil
}

// buildQdrantFilter translates a SearchFilter into qdrant conditions.
func buildQdrantFilter(filter *SearchFilter) *qdrant.Filter {
	if filter == nil {
		return nil
	}

	var must []*qdrant.Condition
	if filter.Tag != "" {
		must = append(must, qdrant.NewMatch("tags", filter.Tag))
	}

	if len(filter.ItemIDs) == 1 {
		must = append(must, qdrant.NewMatch("item_id", filter.ItemIDs[0]))
	} else if len(filter.ItemIDs) > 1 {
		should := make([]*qdrant.Condition, len(filter.ItemIDs))
		for i, id := range filter.ItemIDs {
			should[i] = qdrant.NewMatch("item_id", id)
		}
		if len(must) == 0 {
			return &qdrant.Filter{Should: should}
		}
		return &qdrant.Filter{Must: must, Should: should}
	}

	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// DeleteByItem removes all points whose payload matches the item ID.
func (x *QdrantIndex) DeleteByItem(ctx context.Context, itemID string) error {
	_, err := x.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: x.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{
						qdrant.NewMatch("item_id", itemID),
					},
				},
			},
		},
	})
	return err
}

// Count returns the exact number of points in the collection.
func (x *QdrantIndex) Count(ctx context.Context) (int64, error) {
	exact := true
	n, err := x.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: x.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int64(n), nil
}

// Drop deletes the collection.
func (x *QdrantIndex) Drop(ctx context.Context) error {
	if err := x.client.DeleteCollection(ctx, x.collection); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", x.collection, err)
	}
	logging.Vector("Dropped qdrant collection %s", x.collection)
	return nil
}

// Name identifies the backend.
func (x *QdrantIndex) Name() string {
	return fmt.Sprintf("qdrant:%s", x.collection)
}

// Close closes the gRPC connection.
func (x *QdrantIndex) Close() error {
	return x.client.Close()
}
