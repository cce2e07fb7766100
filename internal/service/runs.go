package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/osama-ammar/ray-scripts/internal/models"
)

// RunStatus represents the state of a batch run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Ledger persists runs and their row outcomes. *db.Client implements it.
type Ledger interface {
	CreateRun(ctx context.Context, id, inputPath, outputPath string, total int, dryRun bool) error
	UpdateRunProgress(ctx context.Context, id string, progress, succeeded, failed int) error
	RecordOutcome(ctx context.Context, runID string, line int, outcome models.RowOutcome) error
	CompleteRun(ctx context.Context, id string, succeeded, failed int) error
	FailRun(ctx context.Context, id, errMsg string) error
}

// Run tracks one batch execution.
type Run struct {
	ID          string
	InputPath   string
	OutputPath  string
	DryRun      bool
	Status      RunStatus
	Progress    int
	Total       int
	Succeeded   int
	Failed      int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time

	mu                 sync.RWMutex
	lastProgressUpdate time.Time
}

// RunManager tracks batch runs and mirrors them to a ledger when one is set.
type RunManager struct {
	ledger Ledger
}

// NewRunManager creates a run manager. ledger may be nil.
func NewRunManager(ledger Ledger) *RunManager {
	return &RunManager{ledger: ledger}
}

// CreateRun registers a new pending run.
func (m *RunManager) CreateRun(ctx context.Context, inputPath, outputPath string, total int, dryRun bool) (*Run, error) {
	run := &Run{
		ID:         uuid.New().String()[:8],
		InputPath:  inputPath,
		OutputPath: outputPath,
		DryRun:     dryRun,
		Status:     RunStatusPending,
		Total:      total,
		StartedAt:  time.Now(),
	}

	if m.ledger != nil {
		if err := m.ledger.CreateRun(ctx, run.ID, inputPath, outputPath, total, dryRun); err != nil {
			return nil, err
		}
	}

	slog.Info("run created", "run_id", run.ID, "input", inputPath, "rows", total, "dry_run", dryRun)
	return run, nil
}

// RowFinished counts a finished row and records its outcome.
// Progress is persisted at most every 5 seconds, every 10 rows, and on the last row.
func (m *RunManager) RowFinished(ctx context.Context, run *Run, line int, outcome models.RowOutcome) {
	run.mu.Lock()
	run.Status = RunStatusRunning
	run.Progress++
	if outcome.Succeeded() {
		run.Succeeded++
	} else {
		run.Failed++
	}
	progress, succeeded, failed := run.Progress, run.Succeeded, run.Failed
	shouldPersist := m.ledger != nil && (time.Since(run.lastProgressUpdate) > 5*time.Second ||
		progress%10 == 0 || progress == run.Total)
	if shouldPersist {
		run.lastProgressUpdate = time.Now()
	}
	run.mu.Unlock()

	if m.ledger == nil {
		return
	}
	if err := m.ledger.RecordOutcome(ctx, run.ID, line, outcome); err != nil {
		slog.Warn("failed to record outcome", "run_id", run.ID, "line", line, "error", err)
	}
	if shouldPersist {
		if err := m.ledger.UpdateRunProgress(ctx, run.ID, progress, succeeded, failed); err != nil {
			slog.Warn("failed to persist run progress", "run_id", run.ID, "error", err)
		}
	}
}

// Complete marks the run as completed.
func (m *RunManager) Complete(ctx context.Context, run *Run) {
	run.mu.Lock()
	run.Status = RunStatusCompleted
	now := time.Now()
	run.CompletedAt = &now
	succeeded, failed := run.Succeeded, run.Failed
	run.mu.Unlock()

	if m.ledger != nil {
		if err := m.ledger.CompleteRun(ctx, run.ID, succeeded, failed); err != nil {
			slog.Warn("failed to persist run completion", "run_id", run.ID, "error", err)
		}
	}
	slog.Info("run completed", "run_id", run.ID, "succeeded", succeeded, "failed", failed)
}

// Fail marks the run as failed.
func (m *RunManager) Fail(ctx context.Context, run *Run, err error) {
	run.mu.Lock()
	run.Status = RunStatusFailed
	run.Error = err.Error()
	now := time.Now()
	run.CompletedAt = &now
	run.mu.Unlock()

	if m.ledger != nil {
		if dbErr := m.ledger.FailRun(ctx, run.ID, err.Error()); dbErr != nil {
			slog.Warn("failed to persist run failure", "run_id", run.ID, "error", dbErr)
		}
	}
	slog.Error("run failed", "run_id", run.ID, "error", err)
}

// Observer returns a batch observer that feeds row outcomes into run.
func (m *RunManager) Observer(run *Run) Observer {
	return &runObserver{manager: m, run: run}
}

// Snapshot returns a thread-safe copy of run state.
func (r *Run) Snapshot() Run {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Run{
		ID:          r.ID,
		InputPath:   r.InputPath,
		OutputPath:  r.OutputPath,
		DryRun:      r.DryRun,
		Status:      r.Status,
		Progress:    r.Progress,
		Total:       r.Total,
		Succeeded:   r.Succeeded,
		Failed:      r.Failed,
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}

type runObserver struct {
	manager *RunManager
	run     *Run
}

func (o *runObserver) RowStarted(context.Context, int, int, models.JobRow) {}

func (o *runObserver) RowFinished(ctx context.Context, _, _ int, row models.JobRow, outcome models.RowOutcome) {
	o.manager.RowFinished(ctx, o.run, row.Line, outcome)
}
