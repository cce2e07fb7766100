package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/osama-ammar/ray-scripts/internal/db"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List or inspect recorded batch runs",
	Long: `List batch runs recorded in the run ledger, or show one run with its row outcomes.
Requires SURREALDB_URL.

Examples:
  autoplan runs              # List recent runs
  autoplan runs 3f2a9c1d     # Show run 3f2a9c1d`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "max runs to list")
}

func runRuns(cmd *cobra.Command, args []string) error {
	if !cfg.LedgerEnabled() {
		return errors.New("run ledger not configured: set SURREALDB_URL")
	}
	ctx := cmd.Context()

	dbClient, err := db.Open(ctx, cfg.DB(), slog.Default())
	if err != nil {
		return fmt.Errorf("connect to run ledger: %w", err)
	}
	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			slog.Warn("failed to close run ledger", "error", err)
		}
	}()

	if len(args) == 1 {
		return showRun(ctx, cmd.OutOrStdout(), dbClient, args[0])
	}
	return listRuns(ctx, cmd.OutOrStdout(), dbClient)
}

func listRuns(ctx context.Context, w io.Writer, dbClient *db.Client) error {
	runs, err := dbClient.ListRuns(ctx, runsLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found")
		return nil
	}

	fmt.Fprintf(w, "%-10s %-10s %-10s %-8s %-8s %-20s %s\n", "ID", "STATUS", "PROGRESS", "OK", "FAILED", "STARTED", "INPUT")
	fmt.Fprintln(w, "------------------------------------------------------------------------------------------")
	for _, run := range runs {
		status := run.Status
		if run.DryRun {
			status += "*"
		}
		fmt.Fprintf(w, "%-10s %-10s %-10s %-8d %-8d %-20s %s\n",
			run.Key(), status, fmt.Sprintf("%d/%d", run.Progress, run.Total),
			run.Succeeded, run.Failed, run.StartedAt.Local().Format("2006-01-02 15:04:05"), run.InputPath)
	}
	return nil
}

func showRun(ctx context.Context, w io.Writer, dbClient *db.Client, id string) error {
	run, err := dbClient.GetRun(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}

	fmt.Fprintf(w, "Run: %s\n", run.Key())
	fmt.Fprintf(w, "  Status: %s\n", run.Status)
	if run.DryRun {
		fmt.Fprintln(w, "  Dry run: yes")
	}
	fmt.Fprintf(w, "  Input: %s\n", run.InputPath)
	fmt.Fprintf(w, "  Audit: %s\n", run.OutputPath)
	fmt.Fprintf(w, "  Progress: %d/%d (%d succeeded, %d failed)\n", run.Progress, run.Total, run.Succeeded, run.Failed)
	fmt.Fprintf(w, "  Started: %s\n", run.StartedAt.Format(time.RFC3339))
	if run.CompletedAt != nil {
		fmt.Fprintf(w, "  Completed: %s\n", run.CompletedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "  Duration: %s\n", run.CompletedAt.Sub(run.StartedAt).Round(time.Second))
	}
	if run.Error != nil && *run.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", *run.Error)
	}

	records, err := dbClient.ListOutcomes(ctx, id)
	if err != nil {
		return fmt.Errorf("list outcomes: %w", err)
	}
	if len(records) == 0 {
		return nil
	}
	fmt.Fprintf(w, "\n%-6s %-12s %-16s %-16s %s\n", "LINE", "PATIENT", "PLAN", "BEAMSET", "STATUS")
	for _, r := range records {
		o := r.Outcome
		fmt.Fprintf(w, "%-6d %-12s %-16s %-16s %s\n", r.Line, o.PatientID, o.Plan, o.Beamset, o.StatusOrDefault())
	}
	return nil
}
