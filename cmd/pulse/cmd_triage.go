// Package main implements triage commands for pulse: batch LLM verdicts,
// the review TUI, and the plain shortlist.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pulsepress/internal/library"
	"pulsepress/internal/llm"
	"pulsepress/internal/review"
	"pulsepress/internal/triage"
)

var (
	triageLimit int

	reviewPlain bool

	shortlistApprove bool
	shortlistReject  bool
)

// =============================================================================
// TRIAGE COMMAND
// =============================================================================

// triageCmd scores new items against the configured niche
var triageCmd = &cobra.Command{
	Use:   "triage",
	Short: "Score new items against your niche with the LLM",
	Long: `Runs every 'new' item through the triage model: a structured verdict
with relevance (0-10), evidence level, suggested angle and action. Items at
or above triage.min_score are shortlisted; the rest are rejected. Items
whose verdicts cannot be parsed are marked triage_failed and surface in
'pulse review' for a manual call.`,
	RunE: runTriage,
}

func runTriage(cmd *cobra.Command, args []string) error {
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

	client, err := llm.NewTriageClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx, flushUsage := withUsage(ctx, cfg, ws, "triage")
	defer flushUsage()

	limit := triageLimit
	if limit <= 0 {
		limit = cfg.Triage.BatchLimit
	}

	fmt.Printf("Triaging up to %d items with %s...\n", limit, client.GetModel())
	stats, err := triage.NewTriager(lib, client, cfg).TriageBatch(ctx, limit)
	if err != nil {
		return err
	}

	fmt.Printf("%d items triaged: %d shortlisted, %d rejected, %d failed\n",
		stats.Processed, stats.Shortlisted, stats.Rejected, stats.Failed)
	if stats.Shortlisted+stats.Failed > 0 {
		fmt.Println("Next: pulse review")
	}
	return nil
}

// =============================================================================
// REVIEW COMMAND
// =============================================================================

// reviewCmd opens the interactive triage review
var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review the triage queue interactively",
	Long: `Pages through items awaiting a human call: the model's shortlist plus
anything triage could not parse. 'a' approves, 'r' rejects, 'o' opens the
verdict detail, 'q' quits.

Outside a terminal (or with --plain) prints the queue as a table instead.`,
	RunE: runReview,
}

func runReview(cmd *cobra.Command, args []string) error {
	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg, ws)
	if err != nil {
		return err
	}
	defer lib.Close()

	if reviewPlain || !isInteractive() {
		return review.Table(os.Stdout, lib)
	}
	return review.Run(lib)
}

// isInteractive checks if stdin is a terminal (TTY).
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// =============================================================================
// SHORTLIST COMMAND
// =============================================================================

// shortlistCmd lists shortlisted items or decides one
var shortlistCmd = &cobra.Command{
	Use:   "shortlist [item-id]",
	Short: "List shortlisted items, or approve/reject one by ID",
	Long: `Without arguments, lists the current shortlist. With an item ID and
--approve or --reject, records the decision directly; useful over SSH where
the review TUI is unavailable.

Examples:
  pulse shortlist
  pulse shortlist 9f2c1d88 --approve
  pulse shortlist 9f2c1d88 --reject`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShortlist,
}

func runShortlist(cmd *cobra.Command, args []string) error {
	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg, ws)
	if err != nil {
		return err
	}
	defer lib.Close()

	if len(args) == 1 {
		return decideItem(lib, args[0])
	}

	items, err := lib.ListItems(library.StatusShortlisted, 0)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("Shortlist is empty. Run 'pulse triage' first.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSCORE\tSOURCE\tTITLE\tANGLE")
	for _, item := range items {
		score, angle := "-", ""
		if v, err := lib.GetVerdict(item.ID); err == nil && v != nil {
			score = fmt.Sprintf("%d/10", v.Relevance)
			angle = truncateStr(v.Angle, 48)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			shortID(item.ID), score, item.Source, truncateStr(item.Title, 56), angle)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d shortlisted. Draft from one with 'pulse draft --kind thread --item <id>'.\n", len(items))
	return nil
}

// decideItem resolves a possibly-abbreviated item ID and applies the
// --approve/--reject decision.
func decideItem(lib *library.Library, id string) error {
	if shortlistApprove == shortlistReject {
		return fmt.Errorf("pass exactly one of --approve or --reject")
	}

	item, err := resolveItem(lib, id)
	if err != nil {
		return err
	}

	status := library.StatusShortlisted
	if shortlistReject {
		status = library.StatusRejected
	}
	if err := lib.UpdateItemStatus(item.ID, status); err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", status, item.Title)
	return nil
}

// resolveItem finds an item by full ID or unique prefix.
func resolveItem(lib *library.Library, id string) (*library.Item, error) {
	item, err := lib.GetItem(id)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, library.ErrNotFound) {
		return nil, err
	}

	// Prefix match, most-likely statuses first.
	var matches []*library.Item
	for _, status := range []string{
		library.StatusShortlisted, library.StatusIndexed, library.StatusTriaged,
		library.StatusTriageFailed, library.StatusRejected, library.StatusNew,
	} {
		items, err := lib.ListItems(status, 0)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if strings.HasPrefix(item.ID, id) {
				matches = append(matches, item)
			}
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("item not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("item ID %q is ambiguous (%d matches); use more characters", id, len(matches))
	}
}

// shortID abbreviates a UUID for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	triageCmd.Flags().IntVar(&triageLimit, "limit", 0, "Max items to triage (0 = triage.batch_limit)")

	reviewCmd.Flags().BoolVar(&reviewPlain, "plain", false, "Print the queue as a table instead of the TUI")

	shortlistCmd.Flags().BoolVar(&shortlistApprove, "approve", false, "Approve the item (status shortlisted)")
	shortlistCmd.Flags().BoolVar(&shortlistReject, "reject", false, "Reject the item")

	rootCmd.AddCommand(triageCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(shortlistCmd)
}
