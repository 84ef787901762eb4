// Package llm provides chat completion clients for the providers the
// pipelines call: OpenAI-compatible endpoints, Anthropic, and Gemini.
// Clients are plain HTTP; responses report token usage to the tracker
// carried in the context.
package llm

import (
	"context"
	"fmt"
	"time"

	"pulsepress/internal/config"
)

// Client defines the interface for chat LLM providers.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	SetModel(model string)
	GetModel() string
}

// Options holds provider-independent client settings.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// NewFromConfig builds the client for the configured provider.
func NewFromConfig(cfg *config.Config) (Client, error) {
	opts := Options{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Timeout:     cfg.GetLLMTimeout(),
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}

	switch cfg.LLM.Provider {
	case "openai":
		return NewOpenAIClientWithOptions(opts), nil
	case "anthropic":
		return NewAnthropicClientWithOptions(opts), nil
	case "gemini":
		return NewGeminiClientWithOptions(opts), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (valid: %v)",
			cfg.LLM.Provider, config.ValidProviders)
	}
}

// NewTriageClient builds a client on the (usually cheaper) triage model.
func NewTriageClient(cfg *config.Config) (Client, error) {
	client, err := NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	client.SetModel(cfg.LLM.GetTriageModel())
	return client, nil
}

// NewWriterClient builds a client on the drafting model.
func NewWriterClient(cfg *config.Config) (Client, error) {
	client, err := NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	client.SetModel(cfg.LLM.GetWriterModel())
	return client, nil
}
