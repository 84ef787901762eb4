package publish

import (
	"fmt"
	"strings"

	"pulsepress/internal/library"
	"pulsepress/internal/writer"
)

// draftMarkdown returns the draft body as markdown, with a sources section
// appended when the draft carries citations. Carousel drafts hold slide
// JSON, so their script flattens to headed sections first; every channel
// then works from the same representation.
func draftMarkdown(draft *library.Draft) (string, error) {
	body := draft.Content
	if draft.Kind == library.KindCarousel {
		script, err := writer.ParseCarousel(draft.Content)
		if err != nil {
			return "", fmt.Errorf("carousel draft %s: %w", draft.ID, err)
		}
		body = script.Markdown()
	}
	if sources := citationsMarkdown(draft.Citations); sources != "" {
		body = strings.TrimRight(body, "\n") + "\n\n" + sources
	}
	return body, nil
}

func citationsMarkdown(citations []library.Citation) string {
	if len(citations) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("---\n\n## Sources\n\n")
	for i, c := range citations {
		title := c.Title
		if title == "" {
			title = c.URL
		}
		if c.URL != "" {
			fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, title, c.URL)
		} else {
			fmt.Fprintf(&b, "%d. %s\n", i+1, title)
		}
	}
	return b.String()
}

// clip truncates s to max runes, marking the cut with an ellipsis.
func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}
