package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"pulsepress/internal/llm"
	"pulsepress/internal/logging"
)

// Slide geometry is fixed downstream, so the copy budgets are hard caps.
const (
	minSlideCount = 3
	maxSlideCount = 10
	slideTitleMax = 80
	slideBodyMax  = 350
	hookMax       = 140
	ctaMax        = 140
)

// Slide is one content slide of a carousel script.
type Slide struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// CarouselScript is the typed form of a carousel draft's content.
type CarouselScript struct {
	Hook   string  `json:"hook"`
	Slides []Slide `json:"slides"`
	CTA    string  `json:"cta"`
}

// ParseCarousel decodes a carousel draft's content (or a raw model
// response) into its script.
func ParseCarousel(content string) (*CarouselScript, error) {
	var script CarouselScript
	if err := llm.ExtractJSONInto(content, &script); err != nil {
		return nil, fmt.Errorf("carousel script is not valid JSON: %w", err)
	}
	script.Hook = strings.TrimSpace(script.Hook)
	script.CTA = strings.TrimSpace(script.CTA)
	for i := range script.Slides {
		script.Slides[i].Title = strings.TrimSpace(script.Slides[i].Title)
		script.Slides[i].Body = strings.TrimSpace(script.Slides[i].Body)
	}
	return &script, nil
}

// Markdown flattens the script to headed sections: hook as the title,
// numbered slide headings, CTA as the closing line. Publishers and the
// preview server share this representation.
func (s *CarouselScript) Markdown() string {
	var b strings.Builder
	if s.Hook != "" {
		fmt.Fprintf(&b, "# %s\n\n", s.Hook)
	}
	for i, slide := range s.Slides {
		title := slide.Title
		if title == "" {
			title = fmt.Sprintf("Slide %d", i+1)
		}
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, title)
		if slide.Body != "" {
			fmt.Fprintf(&b, "%s\n\n", slide.Body)
		}
	}
	if s.CTA != "" {
		fmt.Fprintf(&b, "%s\n", s.CTA)
	}
	return b.String()
}

const tightenSystemPrompt = `You tighten carousel copy that exceeds its character budgets. Shorten only the flagged parts, keep every number and claim intact, and re-emit the full script as a single JSON object with keys hook, slides, cta. No other text.`

// processCarousel parses, validates, and budget-fits the model's script.
// Over-budget copy gets one tightening pass; whatever still does not fit
// is truncated so rendering never overflows a slide.
func (w *Writer) processCarousel(ctx context.Context, response string) (string, error) {
	script, err := ParseCarousel(response)
	if err != nil {
		return "", err
	}

	if len(script.Slides) < minSlideCount {
		return "", fmt.Errorf("carousel has %d slides, need at least %d", len(script.Slides), minSlideCount)
	}
	if len(script.Slides) > maxSlideCount {
		logging.Get(logging.CategoryWriter).Warn("carousel has %d slides, keeping the first %d",
			len(script.Slides), maxSlideCount)
		script.Slides = script.Slides[:maxSlideCount]
	}

	if violations := overBudget(script); len(violations) > 0 {
		logging.WriterDebug("carousel over budget, asking for a tighter pass: %s",
			strings.Join(violations, "; "))
		script = w.tightenCarousel(ctx, script, violations)
		enforceBudgets(script)
	}

	out, err := json.MarshalIndent(script, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode carousel script: %w", err)
	}
	return string(out), nil
}

// overBudget lists every budget violation in render order.
func overBudget(script *CarouselScript) []string {
	var violations []string
	if n := utf8.RuneCountInString(script.Hook); n > hookMax {
		violations = append(violations, fmt.Sprintf("hook is %d chars (max %d)", n, hookMax))
	}
	for i, s := range script.Slides {
		if n := utf8.RuneCountInString(s.Title); n > slideTitleMax {
			violations = append(violations, fmt.Sprintf("slide %d title is %d chars (max %d)", i+1, n, slideTitleMax))
		}
		if n := utf8.RuneCountInString(s.Body); n > slideBodyMax {
			violations = append(violations, fmt.Sprintf("slide %d body is %d chars (max %d)", i+1, n, slideBodyMax))
		}
	}
	if n := utf8.RuneCountInString(script.CTA); n > ctaMax {
		violations = append(violations, fmt.Sprintf("cta is %d chars (max %d)", n, ctaMax))
	}
	return violations
}

// tightenCarousel asks the model once to shorten the flagged copy. Any
// failure keeps the original script; enforceBudgets handles the rest.
func (w *Writer) tightenCarousel(ctx context.Context, script *CarouselScript, violations []string) *CarouselScript {
	current, err := json.Marshal(script)
	if err != nil {
		return script
	}

	prompt := fmt.Sprintf("Over budget: %s\n\nScript:\n%s", strings.Join(violations, "; "), current)
	response, err := w.client.CompleteWithSystem(ctx, tightenSystemPrompt, prompt)
	if err != nil {
		logging.Get(logging.CategoryWriter).Warn("tightening pass failed, keeping original copy: %v", err)
		return script
	}

	tightened, err := ParseCarousel(response)
	if err != nil || len(tightened.Slides) < minSlideCount {
		logging.Get(logging.CategoryWriter).Warn("tightening pass returned an unusable script, keeping original copy")
		return script
	}
	if len(tightened.Slides) > maxSlideCount {
		tightened.Slides = tightened.Slides[:maxSlideCount]
	}
	return tightened
}

// enforceBudgets hard-truncates whatever the tightening pass left over.
func enforceBudgets(script *CarouselScript) {
	script.Hook = truncateRunes(script.Hook, hookMax, "hook")
	script.CTA = truncateRunes(script.CTA, ctaMax, "cta")
	for i := range script.Slides {
		script.Slides[i].Title = truncateRunes(script.Slides[i].Title, slideTitleMax,
			fmt.Sprintf("slide %d title", i+1))
		script.Slides[i].Body = truncateRunes(script.Slides[i].Body, slideBodyMax,
			fmt.Sprintf("slide %d body", i+1))
	}
}

// truncateRunes cuts s to max runes with an ellipsis, logging the cut.
func truncateRunes(s string, max int, what string) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	logging.Get(logging.CategoryWriter).Warn("truncating %s from %d to %d chars", what, len(runes), max)
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}
