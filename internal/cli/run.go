package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/osama-ammar/ray-scripts/internal/audit"
	"github.com/osama-ammar/ray-scripts/internal/client"
	"github.com/osama-ammar/ray-scripts/internal/db"
	"github.com/osama-ammar/ray-scripts/internal/lock"
	"github.com/osama-ammar/ray-scripts/internal/models"
	"github.com/osama-ammar/ray-scripts/internal/parser"
	"github.com/osama-ammar/ray-scripts/internal/protocol"
	"github.com/osama-ammar/ray-scripts/internal/service"
)

var _ service.Ledger = (*db.Client)(nil)

var (
	runProtocolRoot string
	runBridgeURL    string
	runDryRun       bool
	runNoLedger     bool
	runNoLock       bool
	runPlain        bool
)

var runCmd = &cobra.Command{
	Use:   "run <batch-file>",
	Short: "Provision every row of a batch file",
	Long: `Provision every row of a batch file in the planning application.

Rows are processed one at a time in file order. A row that fails is recorded in
the audit file and the next row starts. The run stops early only when an isocenter
cannot be placed or the audit file cannot be written.

The audit file is written next to the batch file as <name>_output.txt.

Examples:
  autoplan run batch.csv
  autoplan run batch.csv --protocol-root /mnt/protocols
  autoplan run batch.csv --dry-run
  autoplan run batch.csv --plain --no-ledger`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	runCmd.Flags().StringVar(&runProtocolRoot, "protocol-root", "", "directory protocol and preference paths are relative to")
	runCmd.Flags().StringVar(&runBridgeURL, "bridge", "", "planning application bridge URL")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "resolve rows without creating anything")
	runCmd.Flags().BoolVar(&runNoLedger, "no-ledger", false, "do not record the run in SurrealDB")
	runCmd.Flags().BoolVar(&runNoLock, "no-lock", false, "do not take the planning session lock")
	runCmd.Flags().BoolVar(&runPlain, "plain", false, "print one line per row instead of the progress display")
}

func useProgressUI() bool {
	return !runPlain && isTerminal()
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runProtocolRoot != "" {
		cfg.ProtocolRoot = runProtocolRoot
	}
	if runBridgeURL != "" {
		cfg.BridgeURL = runBridgeURL
	}

	inputPath := args[0]
	batch, err := parser.ReadBatchFile(inputPath)
	if err != nil {
		return fmt.Errorf("read batch file: %w", err)
	}
	if len(batch.Rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No rows to process")
		return nil
	}

	if cfg.LockEnabled() && !runNoLock {
		release, err := acquireSessionLock(ctx)
		if err != nil {
			return err
		}
		defer release()
	}

	var ledger service.Ledger
	if cfg.LedgerEnabled() && !runNoLedger {
		dbClient, err := db.Open(ctx, cfg.DB(), slog.Default())
		if err != nil {
			return fmt.Errorf("connect to run ledger: %w", err)
		}
		defer func() {
			if err := dbClient.Close(context.Background()); err != nil {
				slog.Warn("failed to close run ledger", "error", err)
			}
		}()
		ledger = dbClient
	}

	bridge := client.New(cfg.BridgeURL, cfg.BridgeTimeout)
	defer bridge.Close()
	info, err := bridge.Info(ctx)
	if err != nil {
		return fmt.Errorf("connect to planning application: %w", err)
	}
	slog.Info("planning application connected", "application", info.Application, "version", info.Version, "user", info.User)

	outputPath := audit.OutputPath(inputPath)
	var writer service.OutcomeWriter = audit.New(outputPath)
	if runDryRun {
		writer = discardWriter{}
	}

	manager := service.NewRunManager(ledger)
	run, err := manager.CreateRun(ctx, inputPath, outputPath, len(batch.Rows), runDryRun)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	out := cmd.OutOrStdout()
	observers := []service.Observer{manager.Observer(run)}
	var ui *progressUI
	if useProgressUI() {
		ui = newProgressUI(ctx, run.ID, len(batch.Rows))
		observers = append(observers, ui.Observer())
	} else {
		observers = append(observers, &plainObserver{w: out})
	}

	svc := service.NewBatchService(bridge,
		protocol.NewCatalog(cfg.ProtocolRoot),
		protocol.NewPresetSource(cfg.ProtocolRoot),
		writer,
		service.BatchOptions{
			DryRun:          runDryRun,
			MaxNameAttempts: cfg.MaxNameAttempts,
			Observers:       observers,
		})

	var result *service.BatchResult
	var runErr error
	if ui != nil {
		result, runErr = ui.Run(func(ctx context.Context) (*service.BatchResult, error) {
			return svc.Run(ctx, batch.Rows)
		})
	} else {
		result, runErr = svc.Run(ctx, batch.Rows)
	}

	if runErr != nil {
		manager.Fail(context.Background(), run, runErr)
	} else {
		manager.Complete(ctx, run)
	}

	snap := run.Snapshot()
	printSummary(out, &snap, result, svc.Metrics().Snapshot())
	if runDryRun && result != nil {
		printOutcomes(out, result.Outcomes)
	}

	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, service.ErrIsocenterNotFound):
		fmt.Fprintf(os.Stderr, "Failed to place isocenter: %v\n", runErr)
		return reportedError{runErr}
	case errors.Is(runErr, context.Canceled):
		fmt.Fprintf(os.Stderr, "Run %s interrupted: %v\n", run.ID, runErr)
		return reportedError{runErr}
	default:
		return runErr
	}
}

// acquireSessionLock takes the planning session lock and returns its release.
func acquireSessionLock(ctx context.Context) (func(), error) {
	rdb, err := lock.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect to lock store: %w", err)
	}
	locker := lock.NewLocker(rdb, cfg.LockKey, cfg.LockTTL)
	lease, err := locker.Acquire(ctx, lockOwner())
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	slog.Debug("session lock acquired", "key", cfg.LockKey, "token", lease.Token())

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			slog.Warn("failed to release session lock", "error", err)
		}
		_ = rdb.Close()
	}, nil
}

func lockOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s/%d", host, os.Getpid())
}

// discardWriter drops audit records. Dry runs print outcomes instead.
type discardWriter struct{}

func (discardWriter) Append(models.RowOutcome) error { return nil }

// plainObserver prints one line per finished row.
type plainObserver struct {
	w io.Writer
}

func (o *plainObserver) RowStarted(context.Context, int, int, models.JobRow) {}

func (o *plainObserver) RowFinished(_ context.Context, index, total int, row models.JobRow, outcome models.RowOutcome) {
	fmt.Fprintf(o.w, "[%d/%d] line %d %s %s/%s: %s\n",
		index+1, total, row.Line, row.PatientID, outcome.Plan, outcome.Beamset, outcome.StatusOrDefault())
}
