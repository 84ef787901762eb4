package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
	"pulsepress/internal/render"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const chartYAML = `kind: bar
title: GLP-1 spending
unit: $B
x: ["2021", "2022", "2023"]
series:
  - name: Medicare
    values: [5.7, 9.4, 14.2]
`

const diagramYAML = `title: Referral flow
nodes:
  - id: pcp
    label: Primary care
  - id: neph
    label: Nephrology
edges:
  - from: pcp
    to: neph
`

func openWatchLibrary(t *testing.T) *library.Library {
	t.Helper()
	lib, err := library.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open library: %v", err)
	}
	t.Cleanup(func() { lib.Close() })
	return lib
}

// testWatcher wires a watcher over a throwaway workspace. Specs written
// to w.specsDir render into the workspace assets directory.
func testWatcher(t *testing.T) (*Watcher, *library.Library, *config.Config, string) {
	t.Helper()
	lib := openWatchLibrary(t)
	cfg := config.DefaultConfig()
	workspace := t.TempDir()
	renderer := render.NewRenderer(lib, cfg, workspace)

	specsDir := cfg.SpecsDir(workspace)
	if err := os.MkdirAll(specsDir, 0o755); err != nil {
		t.Fatalf("Failed to create specs dir: %v", err)
	}
	w, err := New(renderer, specsDir)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	t.Cleanup(func() { w.watcher.Close() })
	return w, lib, cfg, workspace
}

func writeSpec(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"chart by kind", chartYAML, library.AssetChart},
		{"chart by series", "title: T\nseries: [{name: a, values: [1]}]", library.AssetChart},
		{"diagram by nodes", diagramYAML, library.AssetDiagram},
		{"neither", "title: just a title", ""},
		{"empty", "", ""},
		{"not yaml", "{{{", ""},
	}
	for _, tt := range tests {
		if got := classify([]byte(tt.data)); got != tt.want {
			t.Errorf("classify(%s) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestIsSpecFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"spending.yaml", true},
		{"flow.yml", true},
		{"FLOW.YML", true},
		{"notes.txt", false},
		{".spending.yaml.swp", false},
		{"spending.yaml~", false},
	}
	for _, tt := range tests {
		if got := isSpecFile(tt.path); got != tt.want {
			t.Errorf("isSpecFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestRescan_RendersEverySpec(t *testing.T) {
	w, lib, cfg, workspace := testWatcher(t)
	writeSpec(t, w.specsDir, "spending.yaml", chartYAML)
	writeSpec(t, w.specsDir, "flow.yaml", diagramYAML)
	writeSpec(t, w.specsDir, "notes.txt", "not a spec")

	if err := w.Rescan(context.Background()); err != nil {
		t.Fatalf("Rescan: %v", err)
	}

	assetsDir := cfg.AssetsDir(workspace)
	for _, want := range []string{
		filepath.Join(assetsDir, "glp-1-spending", "chart.html"),
		filepath.Join(assetsDir, "referral-flow", "diagram.svg"),
	} {
		if _, err := os.Stat(want); err != nil {
			t.Errorf("expected output %s: %v", want, err)
		}
	}

	stats := w.Stats()
	if stats.Renders != 2 {
		t.Errorf("Renders = %d, want 2", stats.Renders)
	}
	if stats.Failures != 0 {
		t.Errorf("Failures = %d, want 0", stats.Failures)
	}

	assets, err := lib.ListAssets("")
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("expected 2 recorded assets, got %d", len(assets))
	}
	kinds := map[string]bool{}
	for _, a := range assets {
		kinds[a.Kind] = true
	}
	if !kinds[library.AssetChart] || !kinds[library.AssetDiagram] {
		t.Errorf("recorded kinds = %v, want chart and diagram", kinds)
	}
}

func TestRescan_MissingDirIsFine(t *testing.T) {
	w, _, _, _ := testWatcher(t)
	w.specsDir = filepath.Join(w.specsDir, "nope")
	if err := w.Rescan(context.Background()); err != nil {
		t.Fatalf("Rescan on missing dir: %v", err)
	}
}

func TestRenderPath_BadSpecCountsFailure(t *testing.T) {
	w, _, cfg, workspace := testWatcher(t)
	path := writeSpec(t, w.specsDir, "bad.yaml", "kind: pie\ntitle: Bad\nx: [a]\nseries: [{name: s, values: [1]}]")

	w.renderPath(context.Background(), path)

	stats := w.Stats()
	if stats.Failures != 1 {
		t.Errorf("Failures = %d, want 1", stats.Failures)
	}
	if stats.Renders != 0 {
		t.Errorf("Renders = %d, want 0", stats.Renders)
	}
	if _, err := os.Stat(filepath.Join(cfg.AssetsDir(workspace), "bad")); !os.IsNotExist(err) {
		t.Errorf("bad spec should not produce an asset dir")
	}
}

func TestRenderPath_SkipsUnclassifiedSpec(t *testing.T) {
	w, _, _, _ := testWatcher(t)
	path := writeSpec(t, w.specsDir, "plain.yaml", "title: just a title")

	w.renderPath(context.Background(), path)

	stats := w.Stats()
	if stats.Renders != 0 || stats.Failures != 0 {
		t.Errorf("stats = %+v, want untouched", stats)
	}
}

func TestWatch_RendersOnSpecWrite(t *testing.T) {
	w, lib, cfg, workspace := testWatcher(t)
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)

	writeSpec(t, w.specsDir, "spending.yaml", chartYAML)

	want := filepath.Join(cfg.AssetsDir(workspace), "glp-1-spending", "chart.html")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(want); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("chart.html never appeared at %s", want)
		}
		time.Sleep(50 * time.Millisecond)
	}

	stats := w.Stats()
	if stats.Events == 0 {
		t.Error("expected at least one recorded event")
	}
	if stats.Renders == 0 {
		t.Error("expected at least one render")
	}
	if stats.LastPath == "" {
		t.Error("LastPath not set")
	}

	assets, err := lib.ListAssets("")
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if len(assets) == 0 {
		t.Fatal("expected a recorded asset after watch render")
	}
}

func TestStart_Twice(t *testing.T) {
	w, _, _, _ := testWatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	w.Stop()
}

func TestStop_BeforeStartIsNoop(t *testing.T) {
	w, _, _, _ := testWatcher(t)
	w.Stop()
}