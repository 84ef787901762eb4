// Package watch re-renders chart and diagram assets when their spec
// files change. It backs `pulse watch`: save a spec under .pulse/specs
// and the matching asset regenerates a moment later.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"pulsepress/internal/library"
	"pulsepress/internal/logging"
	"pulsepress/internal/render"
)

// Stats tracks watcher activity for reporting and tests.
type Stats struct {
	Events   int
	Renders  int
	Failures int
	LastPath string
}

// =============================================================================
// WATCHER
// =============================================================================

// Watcher debounces spec file events and re-renders through the shared
// renderer. Renders never screenshot; the HTML and SVG outputs are the
// hot-reload surface and the preview server serves them live.
type Watcher struct {
	renderer *render.Renderer
	specsDir string
	watcher  *fsnotify.Watcher

	mu       sync.Mutex
	pending  map[string]time.Time
	debounce time.Duration
	stats    Stats

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// New builds a watcher over the workspace spec directory.
func New(renderer *render.Renderer, specsDir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{
		renderer: renderer,
		specsDir: specsDir,
		watcher:  fsw,
		pending:  make(map[string]time.Time),
		debounce: 500 * time.Millisecond,
	}, nil
}

// Start begins watching. Non-blocking; cancel ctx or call Stop to end.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	if err := os.MkdirAll(w.specsDir, 0o755); err != nil {
		return fmt.Errorf("create specs dir %s: %w", w.specsDir, err)
	}
	if err := w.watcher.Add(w.specsDir); err != nil {
		return fmt.Errorf("watch %s: %w", w.specsDir, err)
	}

	w.mu.Lock()
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	logging.Watch("Watching %s", w.specsDir)
	go w.run(ctx)
	return nil
}

// Stop ends the event loop and closes the underlying watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
	logging.Watch("Watcher stopped")
}

// Stats returns a snapshot of watcher activity.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	// The short tick drains events that have sat past the debounce
	// window, so a burst of editor saves renders once.
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatch).Error("watch error: %v", err)

		case <-tick.C:
			for _, path := range w.settled() {
				w.renderPath(ctx, path)
			}
		}
	}
}

// handleEvent records a spec change for debounced processing.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !isSpecFile(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	logging.WatchDebug("%s: %s", event.Op, event.Name)

	w.mu.Lock()
	w.stats.Events++
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// settled returns paths whose last event is older than the debounce
// window, removing them from the pending set.
func (w *Watcher) settled() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	var paths []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			paths = append(paths, path)
			delete(w.pending, path)
		}
	}
	return paths
}

// Rescan renders every spec currently in the directory. `pulse watch`
// runs it once on startup so assets match specs before watching.
func (w *Watcher) Rescan(ctx context.Context) error {
	entries, err := os.ReadDir(w.specsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !isSpecFile(entry.Name()) {
			continue
		}
		w.renderPath(ctx, filepath.Join(w.specsDir, entry.Name()))
	}
	return nil
}

// renderPath classifies one spec file and re-renders its asset.
func (w *Watcher) renderPath(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		w.fail(path, fmt.Errorf("read %s: %w", path, err))
		return
	}

	switch classify(data) {
	case library.AssetChart:
		spec, err := render.LoadChartSpec(path)
		if err != nil {
			w.fail(path, err)
			return
		}
		out, err := w.renderer.Chart(ctx, spec, "", false)
		if err != nil {
			w.fail(path, err)
			return
		}
		w.done(path)
		logging.Watch("%s -> %s", filepath.Base(path), out.Dir)

	case library.AssetDiagram:
		spec, err := render.LoadDiagramSpec(path)
		if err != nil {
			w.fail(path, err)
			return
		}
		out, err := w.renderer.Diagram(spec, "")
		if err != nil {
			w.fail(path, err)
			return
		}
		w.done(path)
		logging.Watch("%s -> %s", filepath.Base(path), out.Dir)

	default:
		logging.WatchDebug("%s is neither a chart nor a diagram spec, skipping", path)
	}
}

func (w *Watcher) done(path string) {
	w.mu.Lock()
	w.stats.Renders++
	w.stats.LastPath = path
	w.mu.Unlock()
}

func (w *Watcher) fail(path string, err error) {
	w.mu.Lock()
	w.stats.Failures++
	w.stats.LastPath = path
	w.mu.Unlock()
	logging.Get(logging.CategoryWatch).Warn("%s: %v", filepath.Base(path), err)
}

func isSpecFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// specProbe distinguishes the two spec dialects: diagrams carry nodes,
// charts carry a kind and series.
type specProbe struct {
	Kind   string        `yaml:"kind"`
	Nodes  []interface{} `yaml:"nodes"`
	Series []interface{} `yaml:"series"`
}

func classify(data []byte) string {
	var p specProbe
	if err := yaml.Unmarshal(data, &p); err != nil {
		return ""
	}
	if len(p.Nodes) > 0 {
		return library.AssetDiagram
	}
	if p.Kind != "" || len(p.Series) > 0 {
		return library.AssetChart
	}
	return ""
}
