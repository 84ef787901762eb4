// Package usage records LLM token consumption per provider, model,
// operation, and day, persisted as JSON in the workspace.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type trackerKey struct{}
type operationKey struct{}

// Tracker manages token usage recording and persistence.
type Tracker struct {
	mu       sync.Mutex
	data     Data
	filePath string
	dirty    bool
}

// NewTracker creates a tracker persisting to <workspace>/.pulse/usage.json.
func NewTracker(workspacePath string) (*Tracker, error) {
	pulseDir := filepath.Join(workspacePath, ".pulse")
	if err := os.MkdirAll(pulseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .pulse dir: %w", err)
	}

	t := &Tracker{
		filePath: filepath.Join(pulseDir, "usage.json"),
		data: Data{
			Version: "1.0",
			Aggregate: AggregatedStats{
				ByProvider:  make(map[string]TokenCounts),
				ByModel:     make(map[string]TokenCounts),
				ByOperation: make(map[string]TokenCounts),
				ByDay:       make(map[string]TokenCounts),
			},
		},
	}

	// Corrupt or missing files start fresh; usage is best-effort accounting
	_ = t.Load()

	return t, nil
}

// Load reads the usage data from disk.
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &t.data); err != nil {
		return err
	}

	if t.data.Aggregate.ByProvider == nil {
		t.data.Aggregate.ByProvider = make(map[string]TokenCounts)
	}
	if t.data.Aggregate.ByModel == nil {
		t.data.Aggregate.ByModel = make(map[string]TokenCounts)
	}
	if t.data.Aggregate.ByOperation == nil {
		t.data.Aggregate.ByOperation = make(map[string]TokenCounts)
	}
	if t.data.Aggregate.ByDay == nil {
		t.data.Aggregate.ByDay = make(map[string]TokenCounts)
	}

	return nil
}

// Save writes the usage data to disk.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked()
}

func (t *Tracker) saveLocked() error {
	data, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.filePath, data, 0644)
}

// Track records a usage event.
func (t *Tracker) Track(ctx context.Context, model, provider string, input, output int, operation string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if operation == "" {
		operation = "chat"
	}
	day := time.Now().Format("2006-01-02")

	t.data.Aggregate.Total.Add(input, output)
	addToMap(t.data.Aggregate.ByProvider, provider, input, output)
	addToMap(t.data.Aggregate.ByModel, model, input, output)
	addToMap(t.data.Aggregate.ByOperation, operation, input, output)
	addToMap(t.data.Aggregate.ByDay, day, input, output)

	// Debounced auto-save
	if !t.dirty {
		t.dirty = true
		time.AfterFunc(5*time.Second, func() {
			t.Save()
			t.mu.Lock()
			t.dirty = false
			t.mu.Unlock()
		})
	}
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.data.Aggregate
	stats.ByProvider = copyCountsMap(stats.ByProvider)
	stats.ByModel = copyCountsMap(stats.ByModel)
	stats.ByOperation = copyCountsMap(stats.ByOperation)
	stats.ByDay = copyCountsMap(stats.ByDay)
	return stats
}

func copyCountsMap(src map[string]TokenCounts) map[string]TokenCounts {
	if src == nil {
		return nil
	}
	dst := make(map[string]TokenCounts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}

func addToMap(m map[string]TokenCounts, key string, input, output int) {
	entry := m[key]
	entry.Add(input, output)
	m[key] = entry
}

// ============================================================================
// Context helpers
// ============================================================================

// NewContext returns a context carrying the tracker.
func NewContext(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

// FromContext retrieves the tracker from the context, or nil.
func FromContext(ctx context.Context) *Tracker {
	val := ctx.Value(trackerKey{})
	if val == nil {
		return nil
	}
	return val.(*Tracker)
}

// WithOperation labels subsequent LLM calls (triage, draft, embedding, ask).
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, operationKey{}, operation)
}

// OperationFromContext returns the operation label, defaulting to "chat".
func OperationFromContext(ctx context.Context) string {
	if val := ctx.Value(operationKey{}); val != nil {
		return val.(string)
	}
	return "chat"
}
