// Package main implements feed subscription commands for pulse.
package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pulsepress/internal/config"
)

// =============================================================================
// FEEDS COMMAND
// =============================================================================

// feedsCmd lists the configured sources
var feedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "List the configured RSS and PubMed sources",
	Long: `Lists every source in .pulse/feeds.yaml. Edit that file to add or
remove subscriptions; set 'disabled: true' to keep one without fetching it.`,
	RunE: runFeeds,
}

func runFeeds(cmd *cobra.Command, args []string) error {
	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}

	feeds, err := config.LoadFeedList(cfg.FeedsPath(ws))
	if err != nil {
		return err
	}
	if len(feeds.Sources) == 0 {
		fmt.Println("No sources configured. Run 'pulse init' or edit .pulse/feeds.yaml.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tSOURCE\tTAGS")
	for _, s := range feeds.Sources {
		detail := s.URL
		if s.Kind == "pubmed" {
			detail = truncateStr(s.Query, 60)
		}
		name := s.Name
		if s.Disabled {
			name += " (disabled)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, s.Kind, detail, strings.Join(s.Tags, ","))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	active := len(feeds.Active())
	fmt.Printf("\n%d sources (%d active). Fetch them with 'pulse fetch'.\n", len(feeds.Sources), active)
	return nil
}

// truncateStr truncates a string with ellipsis
func truncateStr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func init() {
	rootCmd.AddCommand(feedsCmd)
}
