package pipeline

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/talentpilot/talentpilot/history"
	"github.com/talentpilot/talentpilot/model"
)

// WriteReport renders the end-of-run summary and the run's recorded
// attempts as an aligned console table.
func WriteReport(w io.Writer, stats *model.RunStats, records []history.Record) error {
	mode := "live"
	if stats.Simulation {
		mode = "simulation"
	}
	elapsed := stats.EndedAt.Sub(stats.StartedAt).Round(time.Second)

	fmt.Fprintf(w, "\nRun %s (%s) finished in %s\n", stats.RunID, mode, elapsed)
	fmt.Fprintf(w, "inspected %d   submitted %d   filtered %d   failed %d   skipped %d\n\n",
		stats.Inspected, stats.Submitted, stats.Filtered, stats.Failed, stats.Skipped)

	if len(records) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OUTCOME\tCOMPANY\tTITLE\tDURATION\tREASON")
	for _, r := range records {
		if r.RunID != stats.RunID {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.Outcome, clip(r.Company, 28), clip(r.Title, 40),
			r.Duration.Round(100*time.Millisecond), r.FailureReason)
	}
	return tw.Flush()
}

func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
