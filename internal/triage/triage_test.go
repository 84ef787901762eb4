package triage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
)

// =============================================================================
// FAKES
// =============================================================================

// fakeLLM replays scripted responses; the last one repeats.
type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	model     string
	calls     int
	systems   []string
	prompts   []string
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return f.CompleteWithSystem(ctx, "", prompt)
}

func (f *fakeLLM) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.systems = append(f.systems, systemPrompt)
	f.prompts = append(f.prompts, userPrompt)
	if f.err != nil {
		return "", f.err
	}

	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

func (f *fakeLLM) SetModel(model string) { f.model = model }

func (f *fakeLLM) GetModel() string { return f.model }

// =============================================================================
// FIXTURES
// =============================================================================

const goodVerdict = `{"relevance": 8, "action": "shortlist", "angle": "GLP-1 agonists keep delivering", "hook": "Weight loss that finally sticks", "audience_match": "endocrinologists", "rationale": "RCT with hard cardiovascular outcomes."}`

func openTriageLibrary(t *testing.T) *library.Library {
	t.Helper()
	lib, err := library.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open library: %v", err)
	}
	t.Cleanup(func() { lib.Close() })
	return lib
}

func seedNewItem(t *testing.T, lib *library.Library, title string) *library.Item {
	t.Helper()
	item := &library.Item{
		Source:  "nejm",
		Kind:    "rss",
		URL:     "https://example.org/" + strings.ReplaceAll(title, " ", "-"),
		Title:   title,
		Summary: "Trial summary for " + title + ".",
	}
	if _, err := lib.UpsertItem(item); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	return item
}

func testTriager(lib *library.Library, client *fakeLLM) *Triager {
	cfg := config.DefaultConfig()
	cfg.Triage.Niche = "evidence-based medicine"
	cfg.Triage.MinScore = 6
	cfg.Triage.Parallelism = 2
	cfg.Writer.Audience = "clinicians"
	return NewTriager(lib, client, cfg)
}

func itemStatus(t *testing.T, lib *library.Library, id string) string {
	t.Helper()
	item, err := lib.GetItem(id)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	return item.Status
}

// =============================================================================
// SINGLE ITEM TESTS
// =============================================================================

func TestTriageItem_Shortlists(t *testing.T) {
	lib := openTriageLibrary(t)
	item := seedNewItem(t, lib, "Semaglutide outcomes trial")
	client := &fakeLLM{responses: []string{goodVerdict}, model: "gpt-4o-mini"}

	verdict, err := testTriager(lib, client).TriageItem(context.Background(), item)
	if err != nil {
		t.Fatalf("TriageItem failed: %v", err)
	}
	if verdict.Relevance != 8 || verdict.Action != library.ActionShortlist {
		t.Errorf("Unexpected verdict: relevance=%d action=%s", verdict.Relevance, verdict.Action)
	}
	if verdict.Hook != "Weight loss that finally sticks" {
		t.Errorf("Unexpected hook: %q", verdict.Hook)
	}
	if verdict.Audience != "endocrinologists" {
		t.Errorf("Unexpected audience: %q", verdict.Audience)
	}
	if verdict.Model != "gpt-4o-mini" {
		t.Errorf("Expected client model recorded, got %q", verdict.Model)
	}

	if got := itemStatus(t, lib, item.ID); got != library.StatusShortlisted {
		t.Errorf("Expected shortlisted item, got %q", got)
	}

	stored, err := lib.GetVerdict(item.ID)
	if err != nil {
		t.Fatalf("GetVerdict: %v", err)
	}
	if stored == nil || stored.Rationale != "RCT with hard cardiovascular outcomes." {
		t.Errorf("Verdict not persisted: %+v", stored)
	}

	prompt := client.prompts[0]
	for _, want := range []string{"Niche: evidence-based medicine", "Audience: clinicians", "Title: Semaglutide outcomes trial", "Source: nejm (rss)"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Prompt missing %q:\n%s", want, prompt)
		}
	}
	if !strings.Contains(client.systems[0], "triage editor") {
		t.Errorf("Unexpected system prompt: %.60s", client.systems[0])
	}
}

func TestTriageItem_MinScoreGate(t *testing.T) {
	lib := openTriageLibrary(t)
	item := seedNewItem(t, lib, "Marginal observational study")
	client := &fakeLLM{responses: []string{
		`{"relevance": 4, "action": "shortlist", "rationale": "Observational, small cohort."}`,
	}}

	verdict, err := testTriager(lib, client).TriageItem(context.Background(), item)
	if err != nil {
		t.Fatalf("TriageItem failed: %v", err)
	}
	if verdict.Action != library.ActionSkip {
		t.Errorf("Expected score floor to force skip, got %q", verdict.Action)
	}
	if got := itemStatus(t, lib, item.ID); got != library.StatusRejected {
		t.Errorf("Expected rejected item, got %q", got)
	}
}

func TestTriageItem_ModelSkipWinsOverHighScore(t *testing.T) {
	lib := openTriageLibrary(t)
	item := seedNewItem(t, lib, "Relevant but already covered")
	client := &fakeLLM{responses: []string{
		`{"relevance": 9, "action": "skip", "rationale": "Meta-analysis, but covered last week."}`,
	}}

	verdict, err := testTriager(lib, client).TriageItem(context.Background(), item)
	if err != nil {
		t.Fatalf("TriageItem failed: %v", err)
	}
	if verdict.Action != library.ActionSkip {
		t.Errorf("Expected explicit skip to stand, got %q", verdict.Action)
	}
	if got := itemStatus(t, lib, item.ID); got != library.StatusRejected {
		t.Errorf("Expected rejected item, got %q", got)
	}
}

func TestTriageItem_DeepDive(t *testing.T) {
	lib := openTriageLibrary(t)
	item := seedNewItem(t, lib, "Landmark statin meta-analysis")
	client := &fakeLLM{responses: []string{
		`{"relevance": 9, "action": "deep dive", "rationale": "Meta-analysis of 27 trials."}`,
	}}

	verdict, err := testTriager(lib, client).TriageItem(context.Background(), item)
	if err != nil {
		t.Fatalf("TriageItem failed: %v", err)
	}
	if verdict.Action != library.ActionDeepDive {
		t.Errorf("Expected deep_dive action, got %q", verdict.Action)
	}
	if got := itemStatus(t, lib, item.ID); got != library.StatusShortlisted {
		t.Errorf("Expected shortlisted item, got %q", got)
	}
}

func TestTriageItem_ReformatRetry(t *testing.T) {
	lib := openTriageLibrary(t)
	item := seedNewItem(t, lib, "Retry candidate")
	client := &fakeLLM{responses: []string{
		"Sure! Here is my assessment: the item looks relevant.",
		goodVerdict,
	}}

	verdict, err := testTriager(lib, client).TriageItem(context.Background(), item)
	if err != nil {
		t.Fatalf("TriageItem failed: %v", err)
	}
	if client.calls != 2 {
		t.Errorf("Expected 2 calls (verdict + reformat), got %d", client.calls)
	}
	if client.systems[1] != reformatSystemPrompt {
		t.Errorf("Expected reformat system prompt on retry")
	}
	if client.prompts[1] != client.responses[0] {
		t.Errorf("Expected the broken response fed back for reformatting")
	}
	if verdict.Action != library.ActionShortlist {
		t.Errorf("Unexpected action after retry: %q", verdict.Action)
	}
}

func TestTriageItem_ParksUnparseable(t *testing.T) {
	lib := openTriageLibrary(t)
	item := seedNewItem(t, lib, "Hopeless response")
	client := &fakeLLM{responses: []string{"no json here", "still no json"}}

	_, err := testTriager(lib, client).TriageItem(context.Background(), item)
	if err == nil {
		t.Fatal("Expected error for unparseable verdict")
	}
	if client.calls != 2 {
		t.Errorf("Expected exactly one reformat retry, got %d calls", client.calls)
	}
	if got := itemStatus(t, lib, item.ID); got != library.StatusTriageFailed {
		t.Errorf("Expected triage_failed item, got %q", got)
	}
}

func TestTriageItem_TransportErrorLeavesItemNew(t *testing.T) {
	lib := openTriageLibrary(t)
	item := seedNewItem(t, lib, "Transient failure")
	client := &fakeLLM{err: errors.New("connection reset")}

	_, err := testTriager(lib, client).TriageItem(context.Background(), item)
	if err == nil {
		t.Fatal("Expected error for transport failure")
	}
	if got := itemStatus(t, lib, item.ID); got != library.StatusNew {
		t.Errorf("Expected item left new for the next run, got %q", got)
	}
}

// =============================================================================
// BATCH TESTS
// =============================================================================

func TestTriageBatch(t *testing.T) {
	lib := openTriageLibrary(t)
	seedNewItem(t, lib, "First trial")
	seedNewItem(t, lib, "Second trial")
	seedNewItem(t, lib, "Third trial")
	client := &fakeLLM{responses: []string{goodVerdict}}

	stats, err := testTriager(lib, client).TriageBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("TriageBatch failed: %v", err)
	}
	if stats.Processed != 3 || stats.Shortlisted != 3 || stats.Rejected != 0 || stats.Failed != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	count, err := lib.CountItems(library.StatusShortlisted)
	if err != nil {
		t.Fatalf("CountItems: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 shortlisted items, got %d", count)
	}
	if remaining, _ := lib.CountItems(library.StatusNew); remaining != 0 {
		t.Errorf("Expected no new items left, got %d", remaining)
	}
}

func TestTriageBatch_FailureDoesNotAbort(t *testing.T) {
	lib := openTriageLibrary(t)
	seedNewItem(t, lib, "First trial")
	seedNewItem(t, lib, "Second trial")
	client := &fakeLLM{err: errors.New("provider down")}

	stats, err := testTriager(lib, client).TriageBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("TriageBatch failed: %v", err)
	}
	if stats.Processed != 2 || stats.Failed != 2 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if remaining, _ := lib.CountItems(library.StatusNew); remaining != 2 {
		t.Errorf("Expected items left new after transport failures, got %d", remaining)
	}
}

func TestTriageBatch_NothingToDo(t *testing.T) {
	lib := openTriageLibrary(t)
	client := &fakeLLM{responses: []string{goodVerdict}}

	stats, err := testTriager(lib, client).TriageBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("TriageBatch failed: %v", err)
	}
	if stats.Processed != 0 || client.calls != 0 {
		t.Errorf("Expected idle run, got %+v with %d calls", stats, client.calls)
	}
}

func TestNormalizeAction(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"shortlist", library.ActionShortlist},
		{" Shortlist ", library.ActionShortlist},
		{"deep_dive", library.ActionDeepDive},
		{"deep dive", library.ActionDeepDive},
		{"DeepDive", library.ActionDeepDive},
		{"skip", library.ActionSkip},
		{"keep", library.ActionSkip},
		{"", library.ActionSkip},
	}

	for _, tt := range tests {
		if got := normalizeAction(tt.in); got != tt.want {
			t.Errorf("normalizeAction(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
