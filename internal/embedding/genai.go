package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// =============================================================================
// GOOGLE GEMINI EMBEDDING ENGINE
// =============================================================================

// GeminiEngine generates embeddings using Google's Gemini API.
type GeminiEngine struct {
	client   *genai.Client
	model    string
	dims     int
	taskType string
}

// NewGeminiEngine creates a Gemini embedding engine. The task selects the
// retrieval role the API optimizes the vectors for.
func NewGeminiEngine(apiKey, model string, dims int, task Task) (*GeminiEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if dims <= 0 {
		dims = 768
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	var taskType string
	switch task {
	case TaskDocument:
		taskType = "RETRIEVAL_DOCUMENT"
	case TaskQuery:
		taskType = "RETRIEVAL_QUERY"
	default:
		taskType = "SEMANTIC_SIMILARITY"
	}

	return &GeminiEngine{
		client:   client,
		model:    model,
		dims:     dims,
		taskType: taskType,
	}, nil
}

// Embed generates an embedding for a single text.
func (e *GeminiEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		contents,
		&genai.EmbedContentConfig{
			TaskType: e.taskType,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("Gemini embed failed: %w", err)
	}

	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	return result.Embeddings[0].Values, nil
}

// EmbedBatch generates embeddings for multiple texts.
// Gemini has native batch support.
func (e *GeminiEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		contents,
		&genai.EmbedContentConfig{
			TaskType: e.taskType,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("Gemini batch embed failed: %w", err)
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		embeddings[i] = emb.Values
	}

	return embeddings, nil
}

// Dimensions returns the dimensionality of embeddings.
func (e *GeminiEngine) Dimensions() int {
	return e.dims
}

// Name returns the engine name.
func (e *GeminiEngine) Name() string {
	return fmt.Sprintf("gemini:%s", e.model)
}

// Close closes the Gemini client.
// google.golang.org/genai's Client is HTTP-based and exposes no Close method,
// so there is nothing to release.
func (e *GeminiEngine) Close() error {
	return nil
}
