package retrieval

import (
	"context"
	"fmt"
	"strings"

	"pulsepress/internal/llm"
	"pulsepress/internal/logging"
)

// =============================================================================
// GROUNDED ANSWERING
// =============================================================================

const answerSystemPrompt = `You are a careful medical research assistant. Answer the question using ONLY the numbered sources provided. Cite every claim with its source number in brackets, like [1] or [2][3]. If the sources do not contain enough information to answer, say exactly: "The library does not cover this." Do not use outside knowledge. Keep the answer under 250 words.`

// Answer is a grounded response with the sources it cited.
type Answer struct {
	Text    string
	Sources []Result // sources the model actually cited, in citation order
	Refused bool     // true when retrieval found nothing relevant
}

// Ask retrieves supporting chunks and synthesizes an answer with inline
// [n] citations. When the corpus has nothing relevant the answer refuses
// instead of inviting the model to improvise.
func (s *Searcher) Ask(ctx context.Context, client llm.Client, query string, opts Options) (*Answer, error) {
	results, err := s.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		logging.Retrieval("Ask %q: nothing retrieved, refusing", query)
		return &Answer{
			Text:    "The library does not cover this. Try `pulse fetch` and `pulse index` first.",
			Refused: true,
		}, nil
	}

	prompt := buildAnswerPrompt(query, results)
	text, err := client.CompleteWithSystem(ctx, answerSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("answer synthesis failed: %w", err)
	}

	return &Answer{
		Text:    text,
		Sources: citedSources(text, results),
	}, nil
}

// buildAnswerPrompt assembles the numbered source block and question.
func buildAnswerPrompt(query string, results []Result) string {
	var b strings.Builder
	b.WriteString("Sources:\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", i+1, r.Title, r.Source, r.Text)
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}

// citedSources returns the results whose [n] marker appears in the
// answer, in first-citation order.
func citedSources(text string, results []Result) []Result {
	var cited []Result
	seen := make(map[int]bool)
	for i := 0; i < len(text)-2; i++ {
		if text[i] != '[' {
			continue
		}
		end := strings.IndexByte(text[i:], ']')
		if end <= 1 {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(text[i:i+end+1], "[%d]", &n); err != nil {
			continue
		}
		if n >= 1 && n <= len(results) && !seen[n] {
			seen[n] = true
			cited = append(cited, results[n-1])
		}
	}
	return cited
}
