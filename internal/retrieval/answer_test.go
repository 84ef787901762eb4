package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeLLM struct {
	response   string
	err        error
	lastSystem string
	lastPrompt string
	calls      int
}

func (c *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

func (c *fakeLLM) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.calls++
	c.lastSystem = systemPrompt
	c.lastPrompt = userPrompt
	if c.err != nil {
		return "", c.err
	}
	return c.response, nil
}

func (c *fakeLLM) SetModel(model string) {}

func (c *fakeLLM) GetModel() string { return "fake-model" }

func TestAsk_GroundedAnswerWithCitations(t *testing.T) {
	lib := openSearchLibrary(t)
	seedIndexedChunk(t, lib, "lancet", "Statin meta-analysis", "https://example.org/statin",
		"c-statin", "Statin therapy lowered LDL cholesterol across 27 trials.")
	seedIndexedChunk(t, lib, "nejm", "Aspirin bleeding risk", "https://example.org/aspirin",
		"c-aspirin", "Aspirin raised bleeding risk in older adults.")

	client := &fakeLLM{response: "Statins lower LDL substantially [1]."}
	s := NewSearcher(lib, &fakeEngine{vec: []float32{0.1}}, &fakeDenseIndex{}, nil, testRetrievalConfig())

	answer, err := s.Ask(context.Background(), client, "do statins lower cholesterol", Options{})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer.Refused {
		t.Error("answer should not refuse with a matching corpus")
	}
	if answer.Text != client.response {
		t.Errorf("answer text = %q, want the model response", answer.Text)
	}
	if len(answer.Sources) != 1 || answer.Sources[0].ChunkID != "c-statin" {
		t.Errorf("cited sources = %+v, want just c-statin", answer.Sources)
	}

	// The prompt must carry numbered sources and the question
	if !strings.Contains(client.lastPrompt, "[1] Statin meta-analysis (lancet)") {
		t.Errorf("prompt missing numbered source header:\n%s", client.lastPrompt)
	}
	if !strings.Contains(client.lastPrompt, "Question: do statins lower cholesterol") {
		t.Errorf("prompt missing question:\n%s", client.lastPrompt)
	}
	if !strings.Contains(client.lastSystem, "ONLY the numbered sources") {
		t.Errorf("system prompt missing grounding instruction:\n%s", client.lastSystem)
	}
}

func TestAsk_RefusesOnEmptyRetrieval(t *testing.T) {
	lib := openSearchLibrary(t)

	client := &fakeLLM{response: "should never be used"}
	s := NewSearcher(lib, &fakeEngine{vec: []float32{0.1}}, &fakeDenseIndex{}, nil, testRetrievalConfig())

	answer, err := s.Ask(context.Background(), client, "anything at all", Options{})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !answer.Refused {
		t.Error("empty retrieval should refuse")
	}
	if !strings.Contains(answer.Text, "does not cover") {
		t.Errorf("refusal text = %q", answer.Text)
	}
	if client.calls != 0 {
		t.Error("the model should not be called when nothing was retrieved")
	}
}

func TestAsk_LLMErrorPropagates(t *testing.T) {
	lib := openSearchLibrary(t)
	seedIndexedChunk(t, lib, "lancet", "Statin meta-analysis", "https://example.org/statin",
		"c-statin", "Statin therapy lowered LDL cholesterol.")

	client := &fakeLLM{err: errors.New("model overloaded")}
	s := NewSearcher(lib, &fakeEngine{vec: []float32{0.1}}, &fakeDenseIndex{}, nil, testRetrievalConfig())

	if _, err := s.Ask(context.Background(), client, "statin cholesterol", Options{}); err == nil {
		t.Fatal("expected synthesis error to propagate")
	}
}

func TestCitedSources_OrderAndDedupe(t *testing.T) {
	results := []Result{
		{ChunkID: "c1", Title: "one"},
		{ChunkID: "c2", Title: "two"},
		{ChunkID: "c3", Title: "three"},
	}

	text := "Second source first [2]. Then the first [1][2]. Out of range [9]."
	cited := citedSources(text, results)
	if len(cited) != 2 {
		t.Fatalf("cited %d sources, want 2", len(cited))
	}
	if cited[0].ChunkID != "c2" || cited[1].ChunkID != "c1" {
		t.Errorf("citation order = [%s %s], want [c2 c1]", cited[0].ChunkID, cited[1].ChunkID)
	}
}

func TestCitedSources_NoMarkers(t *testing.T) {
	results := []Result{{ChunkID: "c1"}}
	if cited := citedSources("no citations here", results); cited != nil {
		t.Errorf("cited = %+v, want nil", cited)
	}
}
