package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
)

func TestRunInitCreatesWorkspace(t *testing.T) {
	logger = zap.NewNop()
	workspace = t.TempDir()

	output := captureOutput(t, func() {
		if err := runInit(&cobra.Command{}, nil); err != nil {
			t.Fatalf("runInit returned error: %v", err)
		}
	})

	if !strings.Contains(output, "Initialized pulsepress workspace") {
		t.Fatalf("expected init banner, got: %s", output)
	}
	for _, rel := range []string{"config.yaml", "feeds.yaml", "assets", "specs", "drafts"} {
		if _, err := os.Stat(filepath.Join(config.PulseDir(workspace), rel)); err != nil {
			t.Errorf("expected %s after init: %v", rel, err)
		}
	}
}

func TestRunInitRefusesSecondRun(t *testing.T) {
	logger = zap.NewNop()
	workspace = t.TempDir()

	captureOutput(t, func() {
		if err := runInit(&cobra.Command{}, nil); err != nil {
			t.Fatalf("first init: %v", err)
		}
	})
	output := captureOutput(t, func() {
		if err := runInit(&cobra.Command{}, nil); err != nil {
			t.Fatalf("second init should not error: %v", err)
		}
	})

	if !strings.Contains(output, "already initialized") {
		t.Fatalf("expected already-initialized notice, got: %s", output)
	}
}

func TestConfigTemplateParses(t *testing.T) {
	logger = zap.NewNop()
	workspace = t.TempDir()

	captureOutput(t, func() {
		if err := runInit(&cobra.Command{}, nil); err != nil {
			t.Fatalf("runInit: %v", err)
		}
	})

	cfg, err := config.Load(filepath.Join(config.PulseDir(workspace), "config.yaml"))
	if err != nil {
		t.Fatalf("generated config.yaml does not load: %v", err)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected openai provider from template, got %q", cfg.LLM.Provider)
	}
	if cfg.Triage.BatchLimit != 50 {
		t.Errorf("expected batch_limit 50 from template, got %d", cfg.Triage.BatchLimit)
	}
	if cfg.Retrieval.FinalK != 8 {
		t.Errorf("expected final_k 8 from template, got %d", cfg.Retrieval.FinalK)
	}
}

func TestShowStatusNotInitialized(t *testing.T) {
	logger = zap.NewNop()
	workspace = t.TempDir()

	output := captureOutput(t, func() {
		if err := showStatus(&cobra.Command{}, nil); err != nil {
			t.Fatalf("showStatus returned error: %v", err)
		}
	})

	if !strings.Contains(output, "Not initialized") {
		t.Fatalf("expected initialization notice, got: %s", output)
	}
}

func TestShowStatusAfterInit(t *testing.T) {
	logger = zap.NewNop()
	workspace = t.TempDir()

	captureOutput(t, func() {
		if err := runInit(&cobra.Command{}, nil); err != nil {
			t.Fatalf("runInit: %v", err)
		}
	})
	output := captureOutput(t, func() {
		if err := showStatus(&cobra.Command{}, nil); err != nil {
			t.Fatalf("showStatus returned error: %v", err)
		}
	})

	if !strings.Contains(output, "Library:") {
		t.Fatalf("expected library section, got: %s", output)
	}
	if !strings.Contains(output, "items total") {
		t.Fatalf("expected item totals, got: %s", output)
	}
}

func TestRunFeedsListsStarterSources(t *testing.T) {
	logger = zap.NewNop()
	workspace = t.TempDir()

	captureOutput(t, func() {
		if err := runInit(&cobra.Command{}, nil); err != nil {
			t.Fatalf("runInit: %v", err)
		}
	})
	output := captureOutput(t, func() {
		if err := runFeeds(&cobra.Command{}, nil); err != nil {
			t.Fatalf("runFeeds returned error: %v", err)
		}
	})

	for _, name := range []string{"nejm-current", "bmj-latest", "pubmed-nutrition"} {
		if !strings.Contains(output, name) {
			t.Errorf("expected starter source %s in listing, got: %s", name, output)
		}
	}
	if !strings.Contains(output, "3 sources (3 active)") {
		t.Errorf("expected source totals, got: %s", output)
	}
}

func TestRunDraftsListEmpty(t *testing.T) {
	logger = zap.NewNop()
	workspace = t.TempDir()

	captureOutput(t, func() {
		if err := runInit(&cobra.Command{}, nil); err != nil {
			t.Fatalf("runInit: %v", err)
		}
	})
	output := captureOutput(t, func() {
		if err := runDraftsList(&cobra.Command{}, nil); err != nil {
			t.Fatalf("runDraftsList returned error: %v", err)
		}
	})

	if !strings.Contains(output, "No drafts yet") {
		t.Fatalf("expected empty-library notice, got: %s", output)
	}
}

func TestResolveDraftPrefix(t *testing.T) {
	lib, err := library.Open(":memory:")
	if err != nil {
		t.Fatalf("open library: %v", err)
	}
	t.Cleanup(func() { lib.Close() })

	for _, d := range []*library.Draft{
		{ID: "aaa11111-0000-0000-0000-000000000001", Kind: library.KindThread, Title: "First", Content: "x"},
		{ID: "aab22222-0000-0000-0000-000000000002", Kind: library.KindThread, Title: "Second", Content: "y"},
	} {
		if err := lib.SaveDraft(d); err != nil {
			t.Fatalf("seed draft: %v", err)
		}
	}

	got, err := resolveDraft(lib, "aaa")
	if err != nil {
		t.Fatalf("unique prefix should resolve: %v", err)
	}
	if got.Title != "First" {
		t.Errorf("expected First, got %s", got.Title)
	}

	if _, err := resolveDraft(lib, "aa"); err == nil {
		t.Fatal("expected ambiguity error for shared prefix")
	} else if !strings.Contains(err.Error(), "ambiguous") {
		t.Errorf("expected ambiguity message, got: %v", err)
	}

	if _, err := resolveDraft(lib, "zzz"); err == nil {
		t.Fatal("expected error for unknown draft")
	}
}

func TestDraftMarkdownFlattensCarousel(t *testing.T) {
	draft := &library.Draft{
		Kind:  library.KindCarousel,
		Title: "Five GLP-1 facts",
		Content: `{"hook":"Five GLP-1 facts your feed got wrong",` +
			`"slides":[{"title":"Spending","body":"Medicare spent $57B in 2023."},` +
			`{"title":"Access","body":"Coverage varies by state."},` +
			`{"title":"Evidence","body":"Cardiovascular outcomes improved."}],` +
			`"cta":"Follow for weekly evidence checks"}`,
		Citations: []library.Citation{{Title: "NEJM study", URL: "https://example.org/nejm"}},
	}

	md := draftMarkdown(draft)
	if !strings.Contains(md, "# Five GLP-1 facts your feed got wrong") {
		t.Errorf("expected hook heading, got: %s", md)
	}
	if !strings.Contains(md, "## 2. Access") {
		t.Errorf("expected numbered slide headings, got: %s", md)
	}
	if !strings.Contains(md, "[NEJM study](https://example.org/nejm)") {
		t.Errorf("expected citation link, got: %s", md)
	}
}

func TestDraftMarkdownPlainDraft(t *testing.T) {
	draft := &library.Draft{
		Kind:    library.KindNewsletter,
		Title:   "Weekly roundup",
		Content: "Body text here.",
	}
	md := draftMarkdown(draft)
	if !strings.Contains(md, "# Weekly roundup") {
		t.Errorf("expected title heading, got: %s", md)
	}
	if strings.Contains(md, "## Sources") {
		t.Errorf("no citations should mean no sources section, got: %s", md)
	}
}

func TestSplitAddr(t *testing.T) {
	host, port, err := splitAddr("0.0.0.0:9000")
	if err != nil {
		t.Fatalf("splitAddr: %v", err)
	}
	if host != "0.0.0.0" || port != 9000 {
		t.Errorf("expected 0.0.0.0:9000, got %s:%d", host, port)
	}

	host, port, err = splitAddr(":8080")
	if err != nil {
		t.Fatalf("splitAddr bare port: %v", err)
	}
	if host != "127.0.0.1" || port != 8080 {
		t.Errorf("expected loopback default, got %s:%d", host, port)
	}

	if _, _, err := splitAddr("8080"); err == nil {
		t.Fatal("expected error for missing colon")
	}
}

func TestFormatCount(t *testing.T) {
	cases := []struct {
		n    int64
		want string
	}{
		{512, "512"},
		{9999, "9999"},
		{10000, "10k"},
		{340_000, "340k"},
		{1_250_000, "1.2M"},
	}
	for _, tc := range cases {
		if got := formatCount(tc.n); got != tc.want {
			t.Errorf("formatCount(%d) = %s, want %s", tc.n, got, tc.want)
		}
	}
}

func TestExportSlug(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Five GLP-1 facts", "five-glp-1-facts"},
		{"  Weird?? Punctuation!!", "weird-punctuation"},
		{"", "draft"},
	}
	for _, tc := range cases {
		if got := exportSlug(tc.in); got != tc.want {
			t.Errorf("exportSlug(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSnippet(t *testing.T) {
	got := snippet("  one\n two\tthree  ", 100)
	if got != "one two three" {
		t.Errorf("expected whitespace flattened, got %q", got)
	}
	long := strings.Repeat("word ", 60)
	if got := snippet(long, 20); len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Errorf("expected 20-char ellipsized snippet, got %q", got)
	}
}

func TestTruncateStr(t *testing.T) {
	if got := truncateStr("short", 10); got != "short" {
		t.Errorf("expected passthrough, got %q", got)
	}
	if got := truncateStr("a very long string indeed", 10); got != "a very ..." {
		t.Errorf("expected truncation, got %q", got)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("aaa11111-0000"); got != "aaa11111" {
		t.Errorf("expected 8-char prefix, got %q", got)
	}
	if got := shortID("ab"); got != "ab" {
		t.Errorf("short IDs pass through, got %q", got)
	}
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	origOut := os.Stdout
	origErr := os.Stderr
	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, rOut)
		_, _ = io.Copy(&buf, rErr)
		done <- buf.String()
	}()

	fn()

	_ = wOut.Close()
	_ = wErr.Close()
	os.Stdout = origOut
	os.Stderr = origErr
	return <-done
}
