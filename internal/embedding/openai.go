package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"pulsepress/internal/logging"
	"pulsepress/internal/usage"
)

// =============================================================================
// OPENAI EMBEDDING ENGINE
// =============================================================================

const openaiMaxRetries = 3

// OpenAIEngine generates embeddings via the OpenAI embeddings API.
// Works with any OpenAI-compatible endpoint through the base URL.
type OpenAIEngine struct {
	apiKey    string
	baseURL   string
	model     string
	dims      int
	batchSize int

	client *http.Client

	// Rate limiting
	mu          sync.Mutex
	lastRequest time.Time
	minInterval time.Duration

	// Backoff base for retry sleeps, shortened in tests.
	retryBackoffBase time.Duration
}

// NewOpenAIEngine creates an OpenAI embedding engine.
func NewOpenAIEngine(apiKey, baseURL, model string, dims, batchSize int) (*OpenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dims <= 0 {
		dims = 1536
	}
	if batchSize <= 0 {
		batchSize = 64
	}

	return &OpenAIEngine{
		apiKey:    apiKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		model:     model,
		dims:      dims,
		batchSize: batchSize,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		minInterval:      100 * time.Millisecond,
		retryBackoffBase: time.Second,
	}, nil
}

// Embed generates an embedding for a single text.
func (e *OpenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts, splitting the input
// into API calls of at most the configured batch size.
func (e *OpenAIEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := e.embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d failed: %w", start, end, err)
		}
		embeddings = append(embeddings, vectors...)
	}

	return embeddings, nil
}

// Dimensions returns the dimensionality of embeddings.
func (e *OpenAIEngine) Dimensions() int {
	return e.dims
}

// Name returns the engine name.
func (e *OpenAIEngine) Name() string {
	return fmt.Sprintf("openai:%s", e.model)
}

// embed performs one embeddings API call for up to batchSize inputs.
func (e *OpenAIEngine) embed(ctx context.Context, texts []string) ([][]float32, error) {
	// Rate limiting
	e.mu.Lock()
	elapsed := time.Since(e.lastRequest)
	if elapsed < e.minInterval {
		time.Sleep(e.minInterval - elapsed)
	}
	e.lastRequest = time.Now()
	e.mu.Unlock()

	reqBody := openaiEmbedRequest{
		Model: e.model,
		Input: texts,
	}
	// The dimensions parameter is only accepted by text-embedding-3 models.
	if e.dims > 0 && strings.HasPrefix(e.model, "text-embedding-3") {
		reqBody.Dimensions = e.dims
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for i := 0; i <= openaiMaxRetries; i++ {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * e.retryBackoffBase
			logging.EmbeddingDebug("OpenAI embed retry %d/%d after %v", i, openaiMaxRetries, backoff)
			time.Sleep(backoff)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/embeddings", bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+e.apiKey)

		resp, err := e.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("OpenAI embeddings returned status %d: %s", resp.StatusCode, truncateBody(body))
			logging.EmbeddingDebug("OpenAI embed got status %d, retrying", resp.StatusCode)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("OpenAI embeddings returned status %d: %s", resp.StatusCode, truncateBody(body))
		}

		var oaResp openaiEmbedResponse
		if err := json.Unmarshal(body, &oaResp); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		if len(oaResp.Data) != len(texts) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(oaResp.Data))
		}

		if tracker := usage.FromContext(ctx); tracker != nil {
			tracker.Track(ctx, e.model, "openai", oaResp.Usage.PromptTokens, 0, "embed")
		}

		// Place by index; the API documents ordering via the index field.
		vectors := make([][]float32, len(texts))
		for _, d := range oaResp.Data {
			if d.Index < 0 || d.Index >= len(vectors) {
				return nil, fmt.Errorf("embedding index %d out of range", d.Index)
			}
			vectors[d.Index] = d.Embedding
		}
		return vectors, nil
	}

	return nil, fmt.Errorf("OpenAI embeddings failed after %d retries: %w", openaiMaxRetries, lastErr)
}

func truncateBody(body []byte) string {
	const max = 300
	s := string(body)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// =============================================================================
// OPENAI API TYPES
// =============================================================================

type openaiEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}
