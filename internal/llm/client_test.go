package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pulsepress/internal/config"
)

func TestOpenAIClient_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("Expected test-key authorization")
		}

		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "gpt-4o" {
			t.Errorf("Expected model gpt-4o, got %v", body["model"])
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"id": "chatcmpl-123",
			"choices": [{"message": {"content": "Hello, world!"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4}
		}`))
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key")
	client.baseURL = server.URL

	resp, err := client.Complete(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp != "Hello, world!" {
		t.Errorf("Expected 'Hello, world!', got %q", resp)
	}
}

func TestOpenAIClient_RetryOn429(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key")
	client.baseURL = server.URL
	client.retryBackoffBase = time.Millisecond

	resp, err := client.Complete(context.Background(), "ping")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts (2 retries), got %d", attempts)
	}
	if resp != "ok" {
		t.Errorf("Unexpected response: %s", resp)
	}
}

func TestOpenAIClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "bad request"}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key")
	client.baseURL = server.URL

	_, err := client.Complete(context.Background(), "ping")
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestOpenAIClient_NoAPIKey(t *testing.T) {
	client := NewOpenAIClient("")
	_, err := client.Complete(context.Background(), "ping")
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestAnthropicClient_CompleteWithSystem(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Error("Expected x-api-key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("Expected anthropic-version header")
		}

		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["system"] != "be brief" {
			t.Errorf("Expected system prompt, got %v", body["system"])
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"content": [{"type": "text", "text": "Terse reply."}],
			"usage": {"input_tokens": 10, "output_tokens": 3}
		}`))
	}))
	defer server.Close()

	client := NewAnthropicClient("test-key")
	client.baseURL = server.URL

	resp, err := client.CompleteWithSystem(context.Background(), "be brief", "explain BM25")
	if err != nil {
		t.Fatalf("CompleteWithSystem failed: %v", err)
	}
	if resp != "Terse reply." {
		t.Errorf("Expected 'Terse reply.', got %q", resp)
	}
}

func TestGeminiClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Error("Expected x-goog-api-key header")
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"candidates": [{"content": {"parts": [{"text": "Part one. "}, {"text": "Part two."}], "role": "model"}}],
			"usageMetadata": {"promptTokenCount": 8, "candidatesTokenCount": 6}
		}`))
	}))
	defer server.Close()

	client := NewGeminiClient("test-key")
	client.baseURL = server.URL

	resp, err := client.Complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp != "Part one. Part two." {
		t.Errorf("Expected joined parts, got %q", resp)
	}
}

func TestClient_SetModel(t *testing.T) {
	clients := []Client{
		NewOpenAIClient("k"),
		NewAnthropicClient("k"),
		NewGeminiClient("k"),
	}
	for _, c := range clients {
		if c.GetModel() == "" {
			t.Error("Expected default model to be set")
		}
		c.SetModel("custom-model")
		if c.GetModel() != "custom-model" {
			t.Errorf("Expected custom-model, got %s", c.GetModel())
		}
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "k"

	cfg.LLM.Provider = "openai"
	if c, err := NewFromConfig(cfg); err != nil {
		t.Errorf("openai: %v", err)
	} else if _, ok := c.(*OpenAIClient); !ok {
		t.Errorf("openai: wrong client type %T", c)
	}

	cfg.LLM.Provider = "anthropic"
	if c, err := NewFromConfig(cfg); err != nil {
		t.Errorf("anthropic: %v", err)
	} else if _, ok := c.(*AnthropicClient); !ok {
		t.Errorf("anthropic: wrong client type %T", c)
	}

	cfg.LLM.Provider = "gemini"
	if c, err := NewFromConfig(cfg); err != nil {
		t.Errorf("gemini: %v", err)
	} else if _, ok := c.(*GeminiClient); !ok {
		t.Errorf("gemini: wrong client type %T", c)
	}

	cfg.LLM.Provider = "watsonx"
	if _, err := NewFromConfig(cfg); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewTriageClient_UsesTriageModel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "k"
	cfg.LLM.Model = "gpt-4o"
	cfg.LLM.TriageModel = "gpt-4o-mini"

	c, err := NewTriageClient(cfg)
	if err != nil {
		t.Fatalf("NewTriageClient: %v", err)
	}
	if c.GetModel() != "gpt-4o-mini" {
		t.Errorf("triage model = %s, want gpt-4o-mini", c.GetModel())
	}
}
