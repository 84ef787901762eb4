package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pulsepress/internal/publish"
)

var (
	publishTo     string
	publishDryRun bool
	publishForce  bool
	notifyDryRun  bool
)

// =============================================================================
// PUBLISH COMMANDS
// =============================================================================

// publishCmd sends an approved draft to a channel
var publishCmd = &cobra.Command{
	Use:   "publish <draft-id>",
	Short: "Publish an approved draft to Notion, Slack or email",
	Long: `Publishes an approved draft and records the receipt in the library.

Channels:
  notion  page in the configured database
  slack   message to the configured channel
  email   SMTP newsletter to the configured recipients

A draft must be approved first ('pulse drafts approve <id>'). Publishing
the same draft to the same channel twice needs --force. Use --dry-run to
see the payload without sending anything.`,
	Args: cobra.ExactArgs(1),
	RunE: runPublish,
}

// notifyCmd posts the daily shortlist digest to Slack
var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Post the shortlist digest to Slack",
	RunE:  runNotify,
}

func runPublish(cmd *cobra.Command, args []string) error {
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

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	receipt, err := publish.NewPublisher(lib, cfg).Publish(ctx, draft.ID, publishTo, publish.Options{
		DryRun: publishDryRun,
		Force:  publishForce,
	})
	if err != nil {
		return err
	}

	printReceipt(receipt)
	return nil
}

func runNotify(cmd *cobra.Command, args []string) error {
	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg, ws)
	if err != nil {
		return err
	}
	defer lib.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	receipt, err := publish.NewPublisher(lib, cfg).Notify(ctx, notifyDryRun)
	if err != nil {
		return err
	}

	printReceipt(receipt)
	return nil
}

func printReceipt(r *publish.Receipt) {
	if r.DryRun {
		fmt.Printf("Dry run (%s): %s\n", r.Channel, r.Summary)
		return
	}
	fmt.Printf("✓ %s: %s\n", r.Channel, r.Summary)
	if r.URL != "" {
		fmt.Printf("  %s\n", r.URL)
	}
}

func init() {
	publishCmd.Flags().StringVar(&publishTo, "to", "", "Channel: notion, slack or email (required)")
	publishCmd.Flags().BoolVar(&publishDryRun, "dry-run", false, "Build the payload but send nothing")
	publishCmd.Flags().BoolVar(&publishForce, "force", false, "Publish even if this draft already went to this channel")
	_ = publishCmd.MarkFlagRequired("to")

	notifyCmd.Flags().BoolVar(&notifyDryRun, "dry-run", false, "Print the digest instead of posting it")

	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(notifyCmd)
}
