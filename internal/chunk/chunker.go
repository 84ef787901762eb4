package chunk

import (
	"regexp"
	"strings"
)

// Piece is one chunk of a document with its token count.
type Piece struct {
	Text   string
	Tokens int
}

// Chunker packs paragraphs into token-bounded pieces. Paragraphs larger
// than the budget fall back to a sliding token window with overlap.
type Chunker struct {
	MaxTokens int
	Overlap   int
}

// NewChunker creates a chunker. Invalid sizes fall back to defaults
// (400-token pieces, 50-token overlap).
func NewChunker(maxTokens, overlap int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = 400
	}
	if overlap < 0 || overlap >= maxTokens {
		overlap = maxTokens / 10
	}
	return &Chunker{MaxTokens: maxTokens, Overlap: overlap}
}

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)

// Split divides text into pieces. Paragraph boundaries are preserved
// where possible so pieces read as coherent passages.
func (c *Chunker) Split(text string) ([]Piece, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	enc, err := encoder()
	if err != nil {
		return nil, err
	}

	var pieces []Piece
	var pack []string
	packTokens := 0

	flush := func() {
		if len(pack) == 0 {
			return
		}
		joined := strings.Join(pack, "\n\n")
		pieces = append(pieces, Piece{
			Text:   joined,
			Tokens: len(enc.Encode(joined, nil, nil)),
		})
		pack = nil
		packTokens = 0
	}

	for _, para := range paragraphSplit.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		tokens := enc.Encode(para, nil, nil)
		n := len(tokens)

		if n > c.MaxTokens {
			// Oversized paragraph: flush the pack, then window it
			flush()
			step := c.MaxTokens - c.Overlap
			for start := 0; start < n; start += step {
				end := start + c.MaxTokens
				if end > n {
					end = n
				}
				window := strings.TrimSpace(enc.Decode(tokens[start:end]))
				if window != "" {
					pieces = append(pieces, Piece{Text: window, Tokens: end - start})
				}
				if end == n {
					break
				}
			}
			continue
		}

		if packTokens+n > c.MaxTokens {
			flush()
		}
		pack = append(pack, para)
		packTokens += n
	}
	flush()

	return pieces, nil
}
