package chunk

import (
	"strings"
	"testing"
)

func TestCountTokens(t *testing.T) {
	if got := CountTokens(""); got != 0 {
		t.Errorf("CountTokens(empty) = %d, want 0", got)
	}

	short := CountTokens("aspirin")
	long := CountTokens("aspirin reduces cardiovascular events in secondary prevention")
	if short == 0 {
		t.Error("CountTokens(short) = 0, want > 0")
	}
	if long <= short {
		t.Errorf("longer text should have more tokens: short=%d long=%d", short, long)
	}
}

func TestNewChunker_Defaults(t *testing.T) {
	c := NewChunker(0, -1)
	if c.MaxTokens != 400 {
		t.Errorf("MaxTokens = %d, want 400", c.MaxTokens)
	}
	if c.Overlap != 40 {
		t.Errorf("Overlap = %d, want 40", c.Overlap)
	}

	// Overlap >= MaxTokens is nonsense; falls back to a tenth
	c = NewChunker(100, 200)
	if c.Overlap != 10 {
		t.Errorf("Overlap = %d, want 10", c.Overlap)
	}
}

func TestSplit_Empty(t *testing.T) {
	c := NewChunker(100, 10)
	pieces, err := c.Split("   \n\n  ")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if pieces != nil {
		t.Errorf("Split(whitespace) = %v, want nil", pieces)
	}
}

func TestSplit_ShortTextSinglePiece(t *testing.T) {
	c := NewChunker(400, 50)
	pieces, err := c.Split("A single short abstract about statin therapy.")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(pieces) != 1 {
		t.Fatalf("got %d pieces, want 1", len(pieces))
	}
	if pieces[0].Tokens == 0 {
		t.Error("piece should carry its token count")
	}
}

func TestSplit_PacksParagraphs(t *testing.T) {
	// Each paragraph is ~12 tokens; with a 100-token budget several
	// should pack into one piece
	para := "The trial enrolled two thousand adults with type 2 diabetes."
	text := strings.Join([]string{para, para, para, para}, "\n\n")

	c := NewChunker(100, 10)
	pieces, err := c.Split(text)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(pieces) != 1 {
		t.Fatalf("got %d pieces, want 1 (paragraphs should pack)", len(pieces))
	}
	if !strings.Contains(pieces[0].Text, "\n\n") {
		t.Error("packed piece should preserve paragraph breaks")
	}
}

func TestSplit_RespectsTokenBudget(t *testing.T) {
	para := "Participants were randomized to intensive or standard glycemic control for five years."
	text := strings.Join([]string{para, para, para, para, para, para, para, para}, "\n\n")

	c := NewChunker(40, 5)
	pieces, err := c.Split(text)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(pieces) < 2 {
		t.Fatalf("got %d pieces, want several under a 40-token budget", len(pieces))
	}
	for i, p := range pieces {
		if p.Tokens > 40 {
			t.Errorf("piece %d has %d tokens, budget is 40", i, p.Tokens)
		}
	}
}

func TestSplit_OversizedParagraphWindows(t *testing.T) {
	// One giant paragraph with no breaks forces the token-window path
	sentence := "Hazard ratios were consistent across prespecified subgroups including age sex and baseline risk. "
	text := strings.Repeat(sentence, 30)

	c := NewChunker(50, 10)
	pieces, err := c.Split(text)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(pieces) < 3 {
		t.Fatalf("got %d pieces, want several windows", len(pieces))
	}
	for i, p := range pieces {
		if p.Tokens > 50 {
			t.Errorf("window %d has %d tokens, budget is 50", i, p.Tokens)
		}
	}

	// Overlap means consecutive windows share text
	if !sharesSuffix(pieces[0].Text, pieces[1].Text) {
		t.Error("consecutive windows should overlap")
	}
}

// sharesSuffix reports whether some suffix of a appears in b.
func sharesSuffix(a, b string) bool {
	words := strings.Fields(a)
	if len(words) < 3 {
		return false
	}
	tail := strings.Join(words[len(words)-3:], " ")
	return strings.Contains(b, tail)
}

func TestSplit_WholeDocumentCovered(t *testing.T) {
	text := "Introduction paragraph.\n\nMethods paragraph with more detail.\n\nResults paragraph."

	c := NewChunker(400, 50)
	pieces, err := c.Split(text)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	var joined string
	for _, p := range pieces {
		joined += p.Text + "\n\n"
	}
	for _, want := range []string{"Introduction", "Methods", "Results"} {
		if !strings.Contains(joined, want) {
			t.Errorf("chunks lost %q", want)
		}
	}
}
