// Package embedding provides vector embedding generation for semantic search
// over the library. Supports OpenAI (cloud), Google Gemini (cloud), and
// Ollama (local) backends.
package embedding

import (
	"context"
	"fmt"
	"math"

	"pulsepress/internal/config"
	"pulsepress/internal/logging"
)

// =============================================================================
// EMBEDDING ENGINE INTERFACE
// =============================================================================

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name
	Name() string
}

// HealthChecker is an optional interface for embedding engines that support
// health checks. If an engine implements this interface, the indexing
// pipeline verifies availability before attempting batch operations.
type HealthChecker interface {
	// HealthCheck verifies the embedding service is reachable.
	// Returns nil if healthy, error otherwise.
	HealthCheck(ctx context.Context) error
}

// =============================================================================
// TASK TYPES
// =============================================================================

// Task declares what the embeddings will be used for. Engines whose APIs
// distinguish retrieval roles (Gemini) optimize the vectors accordingly;
// the others ignore it.
type Task string

const (
	// TaskDocument marks texts being indexed for later retrieval.
	TaskDocument Task = "RETRIEVAL_DOCUMENT"

	// TaskQuery marks search queries against an indexed corpus.
	TaskQuery Task = "RETRIEVAL_QUERY"
)

// =============================================================================
// FACTORY
// =============================================================================

// NewEngine creates an embedding engine from configuration. The task tells
// engines with role-aware APIs whether these vectors index documents or
// embed queries.
func NewEngine(cfg config.EmbeddingConfig, task Task) (Engine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	logging.Embedding("Creating embedding engine: provider=%s, model=%s, task=%s", cfg.Provider, cfg.Model, task)

	var engine Engine
	var err error

	switch cfg.Provider {
	case "openai":
		engine, err = NewOpenAIEngine(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimensions, cfg.BatchSize)
	case "gemini":
		engine, err = NewGeminiEngine(cfg.APIKey, cfg.Model, cfg.Dimensions, task)
	case "ollama":
		engine, err = NewOllamaEngine(cfg.OllamaURL, cfg.Model, cfg.Dimensions)
	default:
		err = fmt.Errorf("unsupported embedding provider: %s (use 'openai', 'gemini', or 'ollama')", cfg.Provider)
		logging.Get(logging.CategoryEmbedding).Error("Unsupported embedding provider: %s", cfg.Provider)
		return nil, err
	}

	if err != nil {
		logging.Get(logging.CategoryEmbedding).Error("Failed to create embedding engine: %v", err)
		return nil, err
	}

	logging.Embedding("Embedding engine ready: name=%s, dimensions=%d", engine.Name(), engine.Dimensions())
	return engine, nil
}

// =============================================================================
// COSINE SIMILARITY UTILITY
// =============================================================================

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical, 0 means orthogonal.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dotProduct, aMagnitude, bMagnitude float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i] * b[i])
		aMagnitude += float64(a[i] * a[i])
		bMagnitude += float64(b[i] * b[i])
	}

	if aMagnitude == 0 || bMagnitude == 0 {
		logging.EmbeddingWarn("CosineSimilarity: zero magnitude vector detected")
		return 0, nil
	}

	return dotProduct / (math.Sqrt(aMagnitude) * math.Sqrt(bMagnitude)), nil
}

// FindTopK returns the top K most similar corpus vectors to the query,
// by cosine similarity, most similar first.
func FindTopK(query []float32, corpus [][]float32, k int) ([]SimilarityResult, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "FindTopK")
	defer timer.Stop()

	if k <= 0 {
		k = 10
	}

	logging.EmbeddingDebug("FindTopK: searching for top %d results in corpus of %d vectors (query dim=%d)",
		k, len(corpus), len(query))

	results := make([]SimilarityResult, 0, len(corpus))
	skippedCount := 0

	for i, vec := range corpus {
		similarity, err := CosineSimilarity(query, vec)
		if err != nil {
			skippedCount++
			continue
		}

		results = append(results, SimilarityResult{
			Index:      i,
			Similarity: similarity,
		})
	}

	if skippedCount > 0 {
		logging.EmbeddingWarn("FindTopK: skipped %d vectors due to dimension mismatch", skippedCount)
	}

	// Partial selection sort: only the top K positions need ordering.
	for i := 0; i < len(results) && i < k; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Similarity > results[i].Similarity {
				results[i], results[j] = results[j], results[i]
			}
		}
	}

	if len(results) > k {
		results = results[:k]
	}

	logging.EmbeddingDebug("FindTopK: returning %d results", len(results))
	return results, nil
}

// SimilarityResult represents a similarity search result.
type SimilarityResult struct {
	Index      int
	Similarity float64
}
