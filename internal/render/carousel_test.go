package render

import (
	"encoding/json"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
	"pulsepress/internal/writer"
)

func slideScript() writer.CarouselScript {
	return writer.CarouselScript{
		Hook: "Five numbers that explain GLP-1 access",
		Slides: []writer.Slide{
			{Title: "List prices stayed flat", Body: "Net prices fell for the third year running while list prices held steady."},
			{Title: "Coverage is the bottleneck", Body: "Fewer than half of commercial plans cover the obesity indication."},
			{Title: "Shortages eased", Body: "Every major dose strength has been in stock since March."},
		},
		CTA: "Follow for weekly evidence briefs",
	}
}

func seedCarouselDraft(t *testing.T, lib *library.Library, script writer.CarouselScript, status string) *library.Draft {
	t.Helper()
	content, err := json.Marshal(script)
	if err != nil {
		t.Fatalf("marshal script: %v", err)
	}
	draft := &library.Draft{
		Kind:    library.KindCarousel,
		Title:   "Five numbers on GLP-1 access",
		Content: string(content),
		Status:  status,
	}
	if err := lib.SaveDraft(draft); err != nil {
		t.Fatalf("save draft: %v", err)
	}
	return draft
}

func TestCarousel_RendersSlidePNGs(t *testing.T) {
	r, lib := testRenderer(t)
	draft := seedCarouselDraft(t, lib, slideScript(), library.DraftStatusApproved)

	out, err := r.Carousel(draft.ID)
	if err != nil {
		t.Fatalf("Carousel() error: %v", err)
	}
	// cover + three content slides + CTA
	if len(out.Paths) != 5 {
		t.Fatalf("got %d slides, want 5: %v", len(out.Paths), out.Paths)
	}

	for i, path := range out.Paths {
		want := fmt.Sprintf("slide-%02d.png", i+1)
		if filepath.Base(path) != want {
			t.Errorf("slide %d named %s, want %s", i+1, filepath.Base(path), want)
		}
		f, err := os.Open(path)
		if err != nil {
			t.Fatalf("open slide: %v", err)
		}
		img, err := png.DecodeConfig(f)
		f.Close()
		if err != nil {
			t.Fatalf("slide %d is not a PNG: %v", i+1, err)
		}
		if img.Width != 1080 || img.Height != 1350 {
			t.Errorf("slide %d is %dx%d, want 1080x1350", i+1, img.Width, img.Height)
		}
	}

	assets, err := lib.ListAssets(draft.ID)
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("got %d assets, want 1", len(assets))
	}
	if assets[0].Kind != library.AssetCarousel {
		t.Errorf("asset kind = %s, want %s", assets[0].Kind, library.AssetCarousel)
	}
	if assets[0].Path != out.Dir {
		t.Errorf("asset path = %s, want slide dir %s", assets[0].Path, out.Dir)
	}
}

func TestCarousel_SkipsEmptyHookAndCTA(t *testing.T) {
	r, lib := testRenderer(t)
	script := slideScript()
	script.Hook = ""
	script.CTA = ""
	draft := seedCarouselDraft(t, lib, script, library.DraftStatusApproved)

	out, err := r.Carousel(draft.ID)
	if err != nil {
		t.Fatalf("Carousel() error: %v", err)
	}
	if len(out.Paths) != 3 {
		t.Errorf("got %d slides, want 3 content slides", len(out.Paths))
	}
}

func TestCarousel_UnapprovedStillRenders(t *testing.T) {
	r, lib := testRenderer(t)
	draft := seedCarouselDraft(t, lib, slideScript(), library.DraftStatusDraft)

	if _, err := r.Carousel(draft.ID); err != nil {
		t.Fatalf("Carousel() error on draft status: %v", err)
	}
}

func TestCarousel_CustomGeometry(t *testing.T) {
	lib := openRenderLibrary(t)
	cfg := config.DefaultConfig()
	cfg.Render.Carousel.Width = 540
	cfg.Render.Carousel.Height = 675
	r := NewRenderer(lib, cfg, t.TempDir())
	draft := seedCarouselDraft(t, lib, slideScript(), library.DraftStatusApproved)

	out, err := r.Carousel(draft.ID)
	if err != nil {
		t.Fatalf("Carousel() error: %v", err)
	}
	f, err := os.Open(out.Paths[0])
	if err != nil {
		t.Fatalf("open slide: %v", err)
	}
	defer f.Close()
	img, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode slide: %v", err)
	}
	if img.Width != 540 || img.Height != 675 {
		t.Errorf("slide is %dx%d, want 540x675", img.Width, img.Height)
	}
}

func TestCarousel_WrongKind(t *testing.T) {
	r, lib := testRenderer(t)
	draft := &library.Draft{
		Kind:    library.KindNewsletter,
		Title:   "Weekly brief",
		Content: "# Weekly brief",
	}
	if err := lib.SaveDraft(draft); err != nil {
		t.Fatalf("save draft: %v", err)
	}

	if _, err := r.Carousel(draft.ID); err == nil {
		t.Fatal("Carousel() accepted a newsletter draft")
	}
}

func TestCarousel_BadScript(t *testing.T) {
	r, lib := testRenderer(t)
	draft := &library.Draft{
		Kind:    library.KindCarousel,
		Title:   "Broken",
		Content: "not a carousel script",
	}
	if err := lib.SaveDraft(draft); err != nil {
		t.Fatalf("save draft: %v", err)
	}

	if _, err := r.Carousel(draft.ID); err == nil {
		t.Fatal("Carousel() accepted an unparseable script")
	}
}

func TestCarousel_MissingDraft(t *testing.T) {
	r, _ := testRenderer(t)
	if _, err := r.Carousel("no-such-draft"); err == nil {
		t.Fatal("Carousel() passed for a missing draft")
	}
}
