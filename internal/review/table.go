package review

import (
	"fmt"
	"io"
	"text/tabwriter"

	"pulsepress/internal/library"
)

// Table prints the review queue as a plain listing for non-interactive
// runs (piped output, CI). Decisions then go through `pulse shortlist`.
func Table(w io.Writer, lib *library.Library) error {
	var total int
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tSCORE\tSOURCE\tTITLE\tANGLE")

	for _, status := range reviewStatuses {
		items, err := lib.ListItems(status, 200)
		if err != nil {
			return err
		}
		for _, item := range items {
			verdict, err := lib.GetVerdict(item.ID)
			if err != nil {
				return err
			}
			score, angle := "-", ""
			if verdict != nil {
				score = fmt.Sprintf("%d/10", verdict.Relevance)
				angle = verdict.Angle
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", item.Status, score, item.Source, item.Title, angle)
			total++
		}
	}

	if err := tw.Flush(); err != nil {
		return err
	}
	if total == 0 {
		fmt.Fprintln(w, "Nothing awaiting review.")
	} else {
		fmt.Fprintf(w, "\n%d items. Use pulse shortlist <item-id> --approve|--reject, or run pulse review in a terminal.\n", total)
	}
	return nil
}
