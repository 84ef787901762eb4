package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pulsepress/internal/config"
)

// =============================================================================
// APIFY FALLBACK SCRAPER
// =============================================================================

// ApifyClient runs a crawler actor against single pages that defeat the
// direct fetcher. The synchronous run endpoint returns dataset items in
// one call, so there is no polling loop.
type ApifyClient struct {
	baseURL string
	token   string
	actor   string
	client  *http.Client
}

// NewApifyClient creates the fallback client.
func NewApifyClient(cfg config.ApifyConfig) *ApifyClient {
	actor := cfg.Actor
	if actor == "" {
		actor = "apify/website-content-crawler"
	}
	return &ApifyClient{
		baseURL: "https://api.apify.com",
		token:   cfg.Token,
		actor:   actor,
		client: &http.Client{
			// Actor runs boot a browser; they are slow
			Timeout: 180 * time.Second,
		},
	}
}

type apifyDatasetItem struct {
	URL      string `json:"url"`
	Text     string `json:"text"`
	Markdown string `json:"markdown"`
}

// ScrapeText runs the actor for one URL and returns the page text.
func (a *ApifyClient) ScrapeText(ctx context.Context, pageURL string) (string, error) {
	input := map[string]interface{}{
		"startUrls":     []map[string]string{{"url": pageURL}},
		"maxCrawlDepth": 0,
		"maxCrawlPages": 1,
	}
	body, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to marshal actor input: %w", err)
	}

	// The actor path segment uses ~ in place of /
	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?format=json",
		a.baseURL, strings.ReplaceAll(a.actor, "/", "~"))

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("actor run failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("actor run returned status %d: %s", resp.StatusCode, truncate(string(msg), 200))
	}

	var items []apifyDatasetItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return "", fmt.Errorf("failed to parse dataset items: %w", err)
	}

	for _, item := range items {
		if text := strings.TrimSpace(item.Text); text != "" {
			return text, nil
		}
		if md := strings.TrimSpace(item.Markdown); md != "" {
			return md, nil
		}
	}
	return "", fmt.Errorf("actor returned no text for %s", pageURL)
}
