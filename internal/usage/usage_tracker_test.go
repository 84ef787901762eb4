package usage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTracker_TrackAggregatesAndPersists(t *testing.T) {
	ws := t.TempDir()
	tracker, err := NewTracker(ws)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	// Avoid background autosave during the test (debounce uses AfterFunc).
	tracker.dirty = true

	ctx := WithOperation(context.Background(), "triage")
	tracker.Track(ctx, "gpt-4o-mini", "openai", 10, 5, OperationFromContext(ctx))
	tracker.Track(ctx, "gpt-4o-mini", "openai", 2, 3, OperationFromContext(ctx))

	stats := tracker.Stats()
	if stats.Total.Input != 12 || stats.Total.Output != 8 || stats.Total.Total != 20 {
		t.Fatalf("Total=%+v, want input=12 output=8 total=20", stats.Total)
	}
	if stats.Total.Calls != 2 {
		t.Fatalf("Calls=%d, want 2", stats.Total.Calls)
	}
	if got := stats.ByProvider["openai"]; got.Total != 20 {
		t.Fatalf("ByProvider[openai]=%+v, want total=20", got)
	}
	if got := stats.ByModel["gpt-4o-mini"]; got.Total != 20 {
		t.Fatalf("ByModel[gpt-4o-mini]=%+v, want total=20", got)
	}
	if got := stats.ByOperation["triage"]; got.Total != 20 {
		t.Fatalf("ByOperation[triage]=%+v, want total=20", got)
	}

	day := time.Now().Format("2006-01-02")
	if got := stats.ByDay[day]; got.Total != 20 {
		t.Fatalf("ByDay[%s]=%+v, want total=20", day, got)
	}

	if err := tracker.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(ws, ".pulse", "usage.json"))
	if err != nil {
		t.Fatalf("read usage.json: %v", err)
	}
	var persisted Data
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("unmarshal usage.json: %v", err)
	}
	if persisted.Aggregate.Total.Total != 20 {
		t.Fatalf("persisted total=%d, want 20", persisted.Aggregate.Total.Total)
	}
}

func TestTracker_LoadExisting(t *testing.T) {
	ws := t.TempDir()

	tracker, err := NewTracker(ws)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	tracker.dirty = true
	tracker.Track(context.Background(), "m", "p", 100, 50, "draft")
	if err := tracker.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh tracker on the same workspace picks up the ledger
	reloaded, err := NewTracker(ws)
	if err != nil {
		t.Fatalf("NewTracker reload: %v", err)
	}
	if got := reloaded.Stats().Total.Total; got != 150 {
		t.Fatalf("reloaded total=%d, want 150", got)
	}
}

func TestTracker_ContextHelpers(t *testing.T) {
	ws := t.TempDir()
	tracker, err := NewTracker(ws)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	ctx := NewContext(context.Background(), tracker)
	if got := FromContext(ctx); got != tracker {
		t.Fatalf("FromContext mismatch")
	}
	if got := FromContext(context.Background()); got != nil {
		t.Fatalf("FromContext on bare context should be nil, got %v", got)
	}

	if got := OperationFromContext(context.Background()); got != "chat" {
		t.Fatalf("default operation = %q, want chat", got)
	}
	ctx = WithOperation(ctx, "embedding")
	if got := OperationFromContext(ctx); got != "embedding" {
		t.Fatalf("operation = %q, want embedding", got)
	}
}
