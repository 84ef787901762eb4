package publish

import (
	"strings"
	"testing"

	"github.com/slack-go/slack"

	"pulsepress/internal/library"
)

func TestDraftBlocks_Layout(t *testing.T) {
	draft := seedDraftValue()
	markdown, err := draftMarkdown(draft)
	if err != nil {
		t.Fatalf("draftMarkdown: %v", err)
	}

	blocks := draftBlocks(draft, markdown)
	if len(blocks) < 3 {
		t.Fatalf("blocks = %d, want header, sections and citations", len(blocks))
	}

	header, ok := blocks[0].(*slack.HeaderBlock)
	if !ok {
		t.Fatalf("first block is %T, want header", blocks[0])
	}
	if header.Text.Text != draft.Title {
		t.Errorf("header = %q", header.Text.Text)
	}

	section, ok := blocks[1].(*slack.SectionBlock)
	if !ok {
		t.Fatalf("second block is %T, want section", blocks[1])
	}
	if !strings.Contains(section.Text.Text, "Semaglutide slowed kidney disease") {
		t.Errorf("section = %q", section.Text.Text)
	}

	last, ok := blocks[len(blocks)-1].(*slack.ContextBlock)
	if !ok {
		t.Fatalf("last block is %T, want context", blocks[len(blocks)-1])
	}
	ref := last.ContextElements.Elements[0].(*slack.TextBlockObject)
	if !strings.Contains(ref.Text, "<https://example.org/flow|[1] FLOW trial results>") {
		t.Errorf("citation context = %q", ref.Text)
	}
}

func TestSplitSections(t *testing.T) {
	if got := splitSections("one para", 100); len(got) != 1 || got[0] != "one para" {
		t.Errorf("single paragraph = %v", got)
	}

	got := splitSections("para one\n\npara two", 10)
	if len(got) != 2 || got[0] != "para one" || got[1] != "para two" {
		t.Errorf("paragraph packing = %v", got)
	}

	got = splitSections(strings.Repeat("x", 25), 10)
	if len(got) != 3 {
		t.Fatalf("oversized split = %v", got)
	}
	if got[0] != strings.Repeat("x", 10) || got[2] != strings.Repeat("x", 5) {
		t.Errorf("oversized chunks = %v", got)
	}

	if got := splitSections("", 10); len(got) != 0 {
		t.Errorf("empty input = %v", got)
	}
}

func TestDigestBlocks(t *testing.T) {
	lib := openPublishLibrary(t)
	ch := newSlackChannel(lib, publishConfig())

	if err := lib.SaveVerdict(&library.Verdict{
		ItemID: "it-1",
		Action: library.ActionShortlist,
		Angle:  "Kidney protection is the new headline claim",
	}); err != nil {
		t.Fatalf("SaveVerdict: %v", err)
	}

	stats := &library.Stats{
		ItemsByStatus: map[string]int{
			library.StatusNew:         3,
			library.StatusShortlisted: 2,
		},
		Drafts: 1,
	}
	items := []*library.Item{
		{ID: "it-1", Source: "nejm", URL: "https://example.org/1", Title: "FLOW kidney outcomes"},
		{ID: "it-2", Source: "jama", Title: "Tirzepatide metabolic outcomes"},
	}

	blocks := ch.digestBlocks(stats, items)
	if len(blocks) != 4 {
		t.Fatalf("blocks = %d, want 4", len(blocks))
	}

	header := blocks[0].(*slack.HeaderBlock)
	if header.Text.Text != "Pulse triage digest" {
		t.Errorf("header = %q", header.Text.Text)
	}

	counts := blocks[1].(*slack.SectionBlock).Text.Text
	if !strings.Contains(counts, "*3* new") || !strings.Contains(counts, "*2* shortlisted") {
		t.Errorf("counts = %q", counts)
	}

	list := blocks[3].(*slack.SectionBlock).Text.Text
	if !strings.Contains(list, "<https://example.org/1|FLOW kidney outcomes>") {
		t.Errorf("list missing linked item: %q", list)
	}
	if !strings.Contains(list, "Kidney protection is the new headline claim") {
		t.Errorf("list missing verdict angle: %q", list)
	}
	if !strings.Contains(list, "Tirzepatide metabolic outcomes (jama)") {
		t.Errorf("list missing unlinked item: %q", list)
	}
}

func TestDigestBlocks_NoShortlist(t *testing.T) {
	lib := openPublishLibrary(t)
	ch := newSlackChannel(lib, publishConfig())

	blocks := ch.digestBlocks(&library.Stats{ItemsByStatus: map[string]int{}}, nil)
	if len(blocks) != 2 {
		t.Errorf("blocks = %d, want header and counts only", len(blocks))
	}
}
