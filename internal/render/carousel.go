package render

import (
	"fmt"
	"path/filepath"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
	"pulsepress/internal/logging"
	"pulsepress/internal/writer"
)

// Type sizes are tuned for the default 1080x1350 canvas. A slide body at
// the writer's 350-char cap wraps to about ten lines here and still leaves
// room for the footer.
const (
	slideMargin  = 96.0
	coverSize    = 74.0
	titleSize    = 52.0
	bodySize     = 38.0
	ctaSize      = 62.0
	counterSize  = 30.0
	footerSize   = 30.0
	slideLeading = 1.4
)

// Slide roles. Cover and CTA get their own treatment.
const (
	roleCover   = "cover"
	roleContent = "content"
	roleCTA     = "cta"
)

type slidePage struct {
	role  string
	title string
	body  string
}

// carouselPages lays the script out as cover, content slides, CTA.
// Empty hook or CTA drops that slide.
func carouselPages(script *writer.CarouselScript) []slidePage {
	var pages []slidePage
	if script.Hook != "" {
		pages = append(pages, slidePage{role: roleCover, body: script.Hook})
	}
	for _, s := range script.Slides {
		pages = append(pages, slidePage{role: roleContent, title: s.Title, body: s.Body})
	}
	if script.CTA != "" {
		pages = append(pages, slidePage{role: roleCTA, body: script.CTA})
	}
	return pages
}

// Carousel renders a carousel draft to one PNG per slide.
func (r *Renderer) Carousel(draftID string) (*Output, error) {
	draft, err := r.lib.GetDraft(draftID)
	if err != nil {
		return nil, err
	}
	if draft.Kind != library.KindCarousel {
		return nil, fmt.Errorf("draft %s is a %s, not a carousel", draft.ID, draft.Kind)
	}
	script, err := writer.ParseCarousel(draft.Content)
	if err != nil {
		return nil, fmt.Errorf("carousel draft %s: %w", draft.ID, err)
	}
	if draft.Status != library.DraftStatusApproved {
		logging.Render("Carousel draft %s is %s, rendering anyway", draft.ID, draft.Status)
	}

	fonts, err := r.loadFonts()
	if err != nil {
		return nil, err
	}

	width := r.cfg.Render.Carousel.Width
	if width <= 0 {
		width = 1080
	}
	height := r.cfg.Render.Carousel.Height
	if height <= 0 {
		height = 1350
	}

	dir, err := r.ensureDir(slugFor(draft.Title, draft.ID))
	if err != nil {
		return nil, err
	}

	painter := &slidePainter{
		fonts: fonts,
		brand: r.cfg.Render.Brand,
		w:     float64(width),
		h:     float64(height),
	}

	pages := carouselPages(script)
	out := &Output{Kind: library.AssetCarousel, Dir: dir}
	for i, page := range pages {
		dc := gg.NewContext(width, height)
		painter.paint(dc, page, i+1, len(pages))
		path := filepath.Join(dir, fmt.Sprintf("slide-%02d.png", i+1))
		if err := dc.SavePNG(path); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		out.Paths = append(out.Paths, path)
	}

	meta := map[string]interface{}{
		"slides": len(pages),
		"width":  width,
		"height": height,
		"files":  out.Paths,
	}
	if err := r.record(out, draft.ID, dir, meta); err != nil {
		return nil, err
	}
	logging.Render("Carousel %s: %d slides -> %s", draft.ID, len(pages), dir)
	return out, nil
}

// slidePainter draws one slide layout onto a gg context.
type slidePainter struct {
	fonts *fontSet
	brand config.BrandConfig
	w, h  float64
}

func (p *slidePainter) paint(dc *gg.Context, page slidePage, num, total int) {
	if page.role == roleCTA {
		dc.SetHexColor(p.brand.Accent)
	} else {
		dc.SetHexColor(p.brand.Background)
	}
	dc.Clear()

	// CTA slides invert: accent canvas, background-colored ink.
	ink := p.brand.Text
	if page.role == roleCTA {
		ink = p.brand.Background
	}

	p.drawCounter(dc, ink, num, total)

	contentW := p.w - 2*slideMargin
	switch page.role {
	case roleCover:
		top := p.drawCentered(dc, page.body, p.fonts.boldFace(coverSize), ink, coverSize, contentW)
		dc.SetHexColor(p.brand.Accent)
		dc.DrawRectangle(slideMargin, top-58, 130, 12)
		dc.Fill()
	case roleCTA:
		p.drawCentered(dc, page.body, p.fonts.boldFace(ctaSize), ink, ctaSize, contentW)
	default:
		p.drawContent(dc, page, ink, contentW)
	}

	p.drawFooter(dc, page.role, ink)
}

// drawCentered wraps text, centers the block vertically and returns the
// block's top edge.
func (p *slidePainter) drawCentered(dc *gg.Context, text string, face font.Face, ink string, size, width float64) float64 {
	dc.SetFontFace(face)
	dc.SetHexColor(ink)
	lines := dc.WordWrap(text, width)
	lineH := size * slideLeading
	top := (p.h - float64(len(lines))*lineH) / 2
	drawLines(dc, lines, slideMargin, top+size, lineH)
	return top
}

func (p *slidePainter) drawContent(dc *gg.Context, page slidePage, ink string, contentW float64) {
	dc.SetHexColor(p.brand.Accent)
	dc.DrawRectangle(slideMargin, 168, 110, 10)
	dc.Fill()

	y := 168.0 + 10 + 88
	if page.title != "" {
		dc.SetFontFace(p.fonts.boldFace(titleSize))
		dc.SetHexColor(ink)
		y = drawLines(dc, dc.WordWrap(page.title, contentW), slideMargin, y, titleSize*1.25)
		y += 20
	}
	if page.body != "" {
		dc.SetFontFace(p.fonts.regularFace(bodySize))
		dc.SetHexColor(ink)
		drawLines(dc, dc.WordWrap(page.body, contentW), slideMargin, y, bodySize*slideLeading)
	}
}

func (p *slidePainter) drawCounter(dc *gg.Context, ink string, num, total int) {
	dc.SetFontFace(p.fonts.regularFace(counterSize))
	dc.SetHexColor(ink)
	label := fmt.Sprintf("%d/%d", num, total)
	w, _ := dc.MeasureString(label)
	dc.DrawString(label, p.w-slideMargin-w, slideMargin)
}

func (p *slidePainter) drawFooter(dc *gg.Context, role, ink string) {
	if p.brand.Handle == "" {
		return
	}
	rule := p.brand.Accent
	if role == roleCTA {
		rule = p.brand.Background
	}
	dc.SetHexColor(rule)
	dc.DrawRectangle(slideMargin, p.h-126, 56, 6)
	dc.Fill()

	dc.SetFontFace(p.fonts.regularFace(footerSize))
	dc.SetHexColor(ink)
	dc.DrawString(p.brand.Handle, slideMargin, p.h-72)
}

// drawLines draws each line at x with the first baseline at y, advancing by
// lineH. Returns the next baseline.
func drawLines(dc *gg.Context, lines []string, x, y, lineH float64) float64 {
	for _, line := range lines {
		dc.DrawString(line, x, y)
		y += lineH
	}
	return y
}
