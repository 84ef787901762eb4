package embedding

import (
	"math"
	"testing"

	"pulsepress/internal/config"
)

// =============================================================================
// COSINE SIMILARITY TESTS
// =============================================================================

func TestCosineSimilarity_IdenticalVectors(t *testing.T) {
	a := []float32{0.5, 0.3, 0.8}

	sim, err := CosineSimilarity(a, a)
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if math.Abs(sim-1.0) > 1e-6 {
		t.Errorf("similarity = %v, want 1.0", sim)
	}
}

func TestCosineSimilarity_OrthogonalVectors(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}

	sim, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if math.Abs(sim) > 1e-6 {
		t.Errorf("similarity = %v, want 0", sim)
	}
}

func TestCosineSimilarity_OppositeVectors(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-1, -2, -3}

	sim, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if math.Abs(sim-(-1.0)) > 1e-6 {
		t.Errorf("similarity = %v, want -1.0", sim)
	}
}

func TestCosineSimilarity_DimensionMismatch(t *testing.T) {
	a := []float32{1, 2}
	b := []float32{1, 2, 3}

	if _, err := CosineSimilarity(a, b); err == nil {
		t.Error("expected error for dimension mismatch, got nil")
	}
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 2, 3}

	sim, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if sim != 0 {
		t.Errorf("similarity = %v, want 0 for zero vector", sim)
	}
}

// =============================================================================
// TOP-K TESTS
// =============================================================================

func TestFindTopK_OrdersBySimilarity(t *testing.T) {
	query := []float32{1, 0}
	corpus := [][]float32{
		{0, 1},     // orthogonal
		{1, 0},     // identical
		{-1, 0},    // opposite
		{0.9, 0.1}, // close
	}

	results, err := FindTopK(query, corpus, 4)
	if err != nil {
		t.Fatalf("FindTopK failed: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("len(results) = %d, want 4", len(results))
	}

	wantOrder := []int{1, 3, 0, 2}
	for i, want := range wantOrder {
		if results[i].Index != want {
			t.Errorf("results[%d].Index = %d, want %d", i, results[i].Index, want)
		}
	}
	if math.Abs(results[0].Similarity-1.0) > 1e-6 {
		t.Errorf("top similarity = %v, want 1.0", results[0].Similarity)
	}
}

func TestFindTopK_TruncatesToK(t *testing.T) {
	query := []float32{1, 0}
	corpus := [][]float32{{1, 0}, {0.8, 0.2}, {0.5, 0.5}, {0, 1}, {-1, 0}}

	results, err := FindTopK(query, corpus, 2)
	if err != nil {
		t.Fatalf("FindTopK failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Index != 0 || results[1].Index != 1 {
		t.Errorf("top 2 indices = %d, %d, want 0, 1", results[0].Index, results[1].Index)
	}
}

func TestFindTopK_KLargerThanCorpus(t *testing.T) {
	query := []float32{1, 0}
	corpus := [][]float32{{1, 0}, {0, 1}}

	results, err := FindTopK(query, corpus, 10)
	if err != nil {
		t.Fatalf("FindTopK failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("len(results) = %d, want 2", len(results))
	}
}

func TestFindTopK_EmptyCorpus(t *testing.T) {
	results, err := FindTopK([]float32{1, 0}, nil, 5)
	if err != nil {
		t.Fatalf("FindTopK failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
}

func TestFindTopK_SkipsMismatchedVectors(t *testing.T) {
	query := []float32{1, 0}
	corpus := [][]float32{
		{1, 0},
		{1, 0, 0}, // wrong dims, skipped
		{0, 1},
	}

	results, err := FindTopK(query, corpus, 10)
	if err != nil {
		t.Fatalf("FindTopK failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	for _, r := range results {
		if r.Index == 1 {
			t.Error("mismatched vector at index 1 should have been skipped")
		}
	}
}

// =============================================================================
// FACTORY TESTS
// =============================================================================

func TestNewEngine_OpenAI(t *testing.T) {
	cfg := config.EmbeddingConfig{
		Provider:   "openai",
		APIKey:     "test-key",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		BatchSize:  64,
	}

	engine, err := NewEngine(cfg, TaskDocument)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if _, ok := engine.(*OpenAIEngine); !ok {
		t.Errorf("engine type = %T, want *OpenAIEngine", engine)
	}
	if engine.Name() != "openai:text-embedding-3-small" {
		t.Errorf("Name() = %q, want %q", engine.Name(), "openai:text-embedding-3-small")
	}
	if engine.Dimensions() != 1536 {
		t.Errorf("Dimensions() = %d, want 1536", engine.Dimensions())
	}
}

func TestNewEngine_OpenAIRequiresKey(t *testing.T) {
	cfg := config.EmbeddingConfig{Provider: "openai"}

	if _, err := NewEngine(cfg, TaskQuery); err == nil {
		t.Error("expected error for missing API key, got nil")
	}
}

func TestNewEngine_GeminiRequiresKey(t *testing.T) {
	cfg := config.EmbeddingConfig{Provider: "gemini"}

	if _, err := NewEngine(cfg, TaskQuery); err == nil {
		t.Error("expected error for missing API key, got nil")
	}
}

func TestNewEngine_Ollama(t *testing.T) {
	cfg := config.EmbeddingConfig{
		Provider:  "ollama",
		OllamaURL: "http://localhost:11434",
	}

	engine, err := NewEngine(cfg, TaskDocument)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if engine.Name() != "ollama:embeddinggemma" {
		t.Errorf("Name() = %q, want %q", engine.Name(), "ollama:embeddinggemma")
	}
	if engine.Dimensions() != 768 {
		t.Errorf("Dimensions() = %d, want 768", engine.Dimensions())
	}
	if _, ok := engine.(HealthChecker); !ok {
		t.Error("ollama engine should implement HealthChecker")
	}
}

func TestNewEngine_UnsupportedProvider(t *testing.T) {
	cfg := config.EmbeddingConfig{Provider: "watsonx"}

	if _, err := NewEngine(cfg, TaskDocument); err == nil {
		t.Error("expected error for unsupported provider, got nil")
	}
}
