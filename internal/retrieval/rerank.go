package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"pulsepress/internal/config"
	"pulsepress/internal/logging"
	"pulsepress/internal/usage"
)

// =============================================================================
// COHERE RERANK CLIENT
// =============================================================================

// CohereReranker reorders fused candidates with the Cohere v2 rerank API.
// Rerank is an optional quality stage: the searcher falls back to fused
// order when the call fails, so errors here are reported, never fatal.
type CohereReranker struct {
	apiKey     string
	baseURL    string
	model      string
	topN       int
	httpClient *http.Client

	// retryBackoffBase is overridable so retry tests run fast
	retryBackoffBase time.Duration
}

// NewCohereReranker builds the reranker from config. Returns nil when
// reranking is disabled or no API key is configured; a nil reranker is
// valid and means "keep fused order".
func NewCohereReranker(cfg config.RerankConfig, timeout time.Duration) *CohereReranker {
	if !cfg.Enabled {
		return nil
	}
	if cfg.APIKey == "" {
		logging.RetrievalWarn("rerank enabled but COHERE_API_KEY not set; using fused order")
		return nil
	}

	model := cfg.Model
	if model == "" {
		model = "rerank-english-v3.0"
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &CohereReranker{
		apiKey:  cfg.APIKey,
		baseURL: "https://api.cohere.com",
		model:   model,
		topN:    cfg.TopN,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retryBackoffBase: time.Second,
	}
}

type cohereRerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type cohereRerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
	Meta struct {
		BilledUnits struct {
			SearchUnits int `json:"search_units"`
		} `json:"billed_units"`
	} `json:"meta"`
	Message string `json:"message,omitempty"`
}

// RerankResult maps a document back to its input position with the
// model's relevance score.
type RerankResult struct {
	Index int
	Score float64
}

// Rerank scores documents against the query and returns them best first.
func (r *CohereReranker) Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	topN := r.topN
	if topN <= 0 || topN > len(documents) {
		topN = len(documents)
	}

	reqBody := cohereRerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: documents,
		TopN:      topN,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Retry loop for 429 and transport errors
	maxRetries := 2
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(1<<uint(i-1)) * r.retryBackoffBase)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+"/v2/rerank", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+r.apiKey)

		resp, err := r.httpClient.Do(req)
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

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			logging.RetrievalDebug("cohere 429, attempt %d/%d", i+1, maxRetries+1)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("rerank request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var crResp cohereRerankResponse
		if err := json.Unmarshal(body, &crResp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}

		if tracker := usage.FromContext(ctx); tracker != nil {
			tracker.Track(ctx, r.model, "cohere",
				crResp.Meta.BilledUnits.SearchUnits, 0, "rerank")
		}

		results := make([]RerankResult, 0, len(crResp.Results))
		for _, res := range crResp.Results {
			results = append(results, RerankResult{Index: res.Index, Score: res.RelevanceScore})
		}
		return results, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Model returns the rerank model name for logs.
func (r *CohereReranker) Model() string {
	return r.model
}
