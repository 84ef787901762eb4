// Package main implements drafting commands for pulse: generating drafts
// and managing the draft lifecycle.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
	"pulsepress/internal/llm"
	"pulsepress/internal/retrieval"
	"pulsepress/internal/writer"
)

var (
	draftKind  string
	draftItem  string
	draftTopic string

	draftsListStatus string
	draftsExportOut  string
)

// =============================================================================
// DRAFT COMMAND
// =============================================================================

// draftCmd writes one draft grounded in the library
var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Draft content grounded in the library",
	Long: `Drafts one piece of content: retrieve supporting chunks for the topic,
assemble a prompt in your configured voice, and save the model's output as a
draft for review.

Kinds: newsletter, thread, linkedin, carousel, explainer.

The subject comes from --item (a shortlisted item; its verdict angle steers
the draft) or --topic (free form).

Examples:
  pulse draft --kind thread --item 9f2c1d88
  pulse draft --kind newsletter --topic "GLP-1 agonists beyond diabetes"`,
	RunE: runDraft,
}

func runDraft(cmd *cobra.Command, args []string) error {
	if draftItem == "" && draftTopic == "" {
		return fmt.Errorf("pass --item <id> or --topic \"...\"")
	}

	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	if err := cfg.ValidateForLLM(); err != nil {
		return err
	}
	lib, err := openLibrary(cfg, ws)
	if err != nil {
		return err
	}
	defer lib.Close()

	client, err := llm.NewWriterClient(cfg)
	if err != nil {
		return err
	}

	// Retrieval is how drafts stay grounded; without embeddings we only
	// proceed when the config says evidence is optional.
	var search writer.Retriever
	searcher, cleanup, err := buildSearcher(cfg, lib)
	if err != nil {
		if cfg.Writer.RequireEvidence {
			return fmt.Errorf("retrieval unavailable: %w (writer.require_evidence is on)", err)
		}
		search = unavailableRetriever{err}
	} else {
		defer cleanup()
		search = searcher
	}

	itemID := draftItem
	if itemID != "" {
		item, err := resolveItem(lib, itemID)
		if err != nil {
			return err
		}
		itemID = item.ID
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx, flushUsage := withUsage(ctx, cfg, ws, "draft")
	defer flushUsage()

	fmt.Printf("Drafting %s with %s...\n", draftKind, client.GetModel())
	draft, err := writer.NewWriter(lib, client, search, cfg).Draft(ctx, writer.Request{
		Kind:   draftKind,
		ItemID: itemID,
		Topic:  draftTopic,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Draft saved: %s\n", draft.ID)
	fmt.Printf("  %s: %s (%d citations)\n", draft.Kind, draft.Title, len(draft.Citations))
	fmt.Printf("Review it with 'pulse drafts show %s', then 'pulse drafts approve %s'.\n",
		shortID(draft.ID), shortID(draft.ID))
	return nil
}

// unavailableRetriever reports why retrieval is down; the writer logs it
// and drafts without sources when evidence is optional.
type unavailableRetriever struct{ err error }

func (u unavailableRetriever) Search(ctx context.Context, query string, opts retrieval.Options) ([]retrieval.Result, error) {
	return nil, u.err
}

// =============================================================================
// DRAFTS SUBCOMMANDS
// =============================================================================

// draftsCmd manages saved drafts
var draftsCmd = &cobra.Command{
	Use:   "drafts",
	Short: "List, show, approve and export drafts",
	RunE:  runDraftsList,
}

var draftsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List drafts",
	RunE:  runDraftsList,
}

var draftsShowCmd = &cobra.Command{
	Use:   "show <draft-id>",
	Short: "Render a draft in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE:  runDraftsShow,
}

var draftsApproveCmd = &cobra.Command{
	Use:   "approve <draft-id>",
	Short: "Approve a draft for publishing",
	Args:  cobra.ExactArgs(1),
	RunE:  runDraftsApprove,
}

var draftsExportCmd = &cobra.Command{
	Use:   "export <draft-id>",
	Short: "Export a draft as a markdown file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDraftsExport,
}

func runDraftsList(cmd *cobra.Command, args []string) error {
	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg, ws)
	if err != nil {
		return err
	}
	defer lib.Close()

	drafts, err := lib.ListDrafts(draftsListStatus, 0)
	if err != nil {
		return err
	}
	if len(drafts) == 0 {
		fmt.Println("No drafts yet. Write one with 'pulse draft'.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tCREATED\tTITLE")
	for _, d := range drafts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			shortID(d.ID), d.Kind, d.Status, d.CreatedAt.Format("2006-01-02"), truncateStr(d.Title, 64))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d drafts.\n", len(drafts))
	return nil
}

func runDraftsShow(cmd *cobra.Command, args []string) error {
	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg, ws)
	if err != nil {
		return err
	}
	defer lib.Close()

	draft, err := resolveDraft(lib, args[0])
	if err != nil {
		return err
	}

	md := draftMarkdown(draft)
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		fmt.Println(md)
		return nil
	}
	out, err := renderer.Render(md)
	if err != nil {
		fmt.Println(md)
		return nil
	}
	fmt.Print(out)

	fmt.Printf("[%s] %s, %s, by %s\n", draft.Status, shortID(draft.ID), draft.Kind, draft.Model)
	return nil
}

func runDraftsApprove(cmd *cobra.Command, args []string) error {
	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg, ws)
	if err != nil {
		return err
	}
	defer lib.Close()

	draft, err := resolveDraft(lib, args[0])
	if err != nil {
		return err
	}
	if err := lib.UpdateDraftStatus(draft.ID, library.DraftStatusApproved); err != nil {
		return err
	}
	fmt.Printf("Approved: %s\n", draft.Title)
	fmt.Printf("Publish it with 'pulse publish %s --to notion|slack|email'.\n", shortID(draft.ID))
	return nil
}

func runDraftsExport(cmd *cobra.Command, args []string) error {
	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg, ws)
	if err != nil {
		return err
	}
	defer lib.Close()

	draft, err := resolveDraft(lib, args[0])
	if err != nil {
		return err
	}

	out := draftsExportOut
	if out == "" {
		name := fmt.Sprintf("%s-%s.md", exportSlug(draft.Title), shortID(draft.ID))
		out = filepath.Join(config.PulseDir(ws), "drafts", name)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(out, []byte(draftMarkdown(draft)), 0o644); err != nil {
		return err
	}
	fmt.Printf("Exported %s to %s\n", shortID(draft.ID), out)
	return nil
}

// draftMarkdown returns the presentable markdown form of a draft.
// Carousel drafts are stored as a JSON slide script and get flattened.
func draftMarkdown(draft *library.Draft) string {
	content := draft.Content
	if draft.Kind == library.KindCarousel {
		if script, err := writer.ParseCarousel(draft.Content); err == nil {
			content = script.Markdown()
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", draft.Title)
	sb.WriteString(content)
	if len(draft.Citations) > 0 {
		sb.WriteString("\n\n## Sources\n")
		for i, c := range draft.Citations {
			label := c.Title
			if label == "" {
				label = c.URL
			}
			fmt.Fprintf(&sb, "%d. [%s](%s)\n", i+1, label, c.URL)
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

// resolveDraft finds a draft by full ID or unique prefix.
func resolveDraft(lib *library.Library, id string) (*library.Draft, error) {
	draft, err := lib.GetDraft(id)
	if err == nil {
		return draft, nil
	}

	drafts, listErr := lib.ListDrafts("", 0)
	if listErr != nil {
		return nil, err
	}
	var matches []*library.Draft
	for _, d := range drafts {
		if strings.HasPrefix(d.ID, id) {
			matches = append(matches, d)
		}
	}
	switch len(matches) {
	case 0:
		return nil, err
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("draft ID %q is ambiguous (%d matches); use more characters", id, len(matches))
	}
}

var exportSlugStrip = regexp.MustCompile(`[^a-z0-9]+`)

func exportSlug(s string) string {
	s = exportSlugStrip.ReplaceAllString(strings.ToLower(s), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "draft"
	}
	if len(s) > 40 {
		s = strings.Trim(s[:40], "-")
	}
	return s
}

func init() {
	draftCmd.Flags().StringVar(&draftKind, "kind", library.KindNewsletter, "Draft kind (newsletter, thread, linkedin, carousel, explainer)")
	draftCmd.Flags().StringVar(&draftItem, "item", "", "Draft from a library item (uses its verdict angle)")
	draftCmd.Flags().StringVar(&draftTopic, "topic", "", "Draft from a free-form topic")

	draftsListCmd.Flags().StringVar(&draftsListStatus, "status", "", "Filter by status (draft, approved, published)")
	draftsExportCmd.Flags().StringVar(&draftsExportOut, "out", "", "Output path (default: .pulse/drafts/<slug>-<id>.md)")

	draftsCmd.AddCommand(draftsListCmd, draftsShowCmd, draftsApproveCmd, draftsExportCmd)
	rootCmd.AddCommand(draftCmd)
	rootCmd.AddCommand(draftsCmd)
}
