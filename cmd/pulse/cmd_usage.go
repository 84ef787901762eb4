package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pulsepress/internal/usage"
)

var usageBy string

// =============================================================================
// USAGE COMMAND
// =============================================================================

// usageCmd reports token spend from the usage ledger
var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Report LLM token usage",
	Long: `Reports token usage recorded in .pulse/usage.json across every call
the pipeline made.

Group with --by: provider, model, op or day.`,
	RunE: runUsage,
}

func runUsage(cmd *cobra.Command, args []string) error {
	_, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	tracker, err := usage.NewTracker(ws)
	if err != nil {
		return err
	}
	stats := tracker.Stats()

	if stats.Total.Calls == 0 {
		fmt.Println("No usage recorded yet.")
		return nil
	}

	fmt.Printf("Total: %s tokens in, %s out over %d calls\n\n",
		formatCount(stats.Total.Input), formatCount(stats.Total.Output), stats.Total.Calls)

	var group map[string]usage.TokenCounts
	var label string
	switch usageBy {
	case "provider":
		group, label = stats.ByProvider, "PROVIDER"
	case "model":
		group, label = stats.ByModel, "MODEL"
	case "op", "operation":
		group, label = stats.ByOperation, "OPERATION"
	case "day":
		group, label = stats.ByDay, "DAY"
	default:
		return fmt.Errorf("unknown --by %q (provider, model, op or day)", usageBy)
	}

	keys := make([]string, 0, len(group))
	for k := range group {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "%s\tIN\tOUT\tTOTAL\tCALLS\t\n", label)
	for _, k := range keys {
		tc := group[k]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t\n",
			k, formatCount(tc.Input), formatCount(tc.Output), formatCount(tc.Total), tc.Calls)
	}
	return tw.Flush()
}

// formatCount renders token counts the way people read them: 1.2M, 340k.
func formatCount(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 10_000:
		return fmt.Sprintf("%.0fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

func init() {
	usageCmd.Flags().StringVar(&usageBy, "by", "model", "Group usage by provider, model, op or day")
	rootCmd.AddCommand(usageCmd)
}
