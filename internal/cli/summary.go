package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/osama-ammar/ray-scripts/internal/metrics"
	"github.com/osama-ammar/ray-scripts/internal/models"
	"github.com/osama-ammar/ray-scripts/internal/service"
)

// summaryStages is how many of the slowest stages the summary lists.
const summaryStages = 3

func printSummary(w io.Writer, run *service.Run, result *service.BatchResult, snap metrics.Snapshot) {
	theme := defaultTheme

	fmt.Fprintln(w)
	switch run.Status {
	case service.RunStatusCompleted:
		fmt.Fprintln(w, theme.completedStyle().Render("✓ Run "+run.ID+" completed"))
	default:
		fmt.Fprintln(w, theme.errorStyle().Render("✗ Run "+run.ID+" "+string(run.Status)))
	}

	if result != nil {
		fmt.Fprintf(w, "  Rows processed:  %d/%d\n", result.Processed, result.Total)
		fmt.Fprintf(w, "  Succeeded:       %d\n", result.Succeeded)
		fmt.Fprintf(w, "  Failed:          %d\n", result.Failed)
	}
	if run.DryRun {
		fmt.Fprintln(w, "  Audit file:      (dry run, not written)")
	} else {
		fmt.Fprintf(w, "  Audit file:      %s\n", run.OutputPath)
	}
	if run.CompletedAt != nil {
		fmt.Fprintf(w, "  Duration:        %s\n", run.CompletedAt.Sub(run.StartedAt).Round(100*time.Millisecond))
	}

	slowest := snap.Slowest(summaryStages + 1)
	if len(slowest) > 0 {
		fmt.Fprintln(w, theme.hintStyle().Render("\n  Slowest stages:"))
		shown := 0
		for _, op := range slowest {
			// Whole-row timing is not a stage.
			if op.Name == metrics.OpRow || shown == summaryStages {
				continue
			}
			fmt.Fprintf(w, "    %-12s %6d ms total  %8.1f ms avg  (%d calls, %d failed)\n",
				op.Name, op.TotalTimeMs, op.AvgTimeMs, op.Count, op.Failures)
			shown++
		}
	}
}

// printOutcomes lists every row's outcome, used when no audit file is written.
func printOutcomes(w io.Writer, outcomes []models.RowOutcome) {
	if len(outcomes) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%-12s %-16s %-16s %-16s %s\n", "PATIENT", "CASE", "PLAN", "BEAMSET", "STATUS")
	fmt.Fprintln(w, "--------------------------------------------------------------------------------")
	for _, o := range outcomes {
		fmt.Fprintf(w, "%-12s %-16s %-16s %-16s %s\n", o.PatientID, o.Case, o.Plan, o.Beamset, o.StatusOrDefault())
	}
}
