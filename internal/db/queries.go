package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/osama-ammar/ray-scripts/internal/models"
)

// CreateRun inserts a running batch run record.
func (c *Client) CreateRun(ctx context.Context, id, inputPath, outputPath string, total int, dryRun bool) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("batch_run", $id) SET
			input_path = $input_path,
			output_path = $output_path,
			status = "running",
			dry_run = $dry_run,
			total = $total,
			started_at = time::now()
	`, map[string]any{
		"id":          id,
		"input_path":  inputPath,
		"output_path": outputPath,
		"dry_run":     dryRun,
		"total":       total,
	})
	if err != nil {
		return fmt.Errorf("create run: %w", wrapQueryError(err))
	}
	return nil
}

// UpdateRunProgress stores the row counters of a run.
func (c *Client) UpdateRunProgress(ctx context.Context, id string, progress, succeeded, failed int) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("batch_run", $id) SET
			progress = $progress,
			succeeded = $succeeded,
			failed = $failed
	`, map[string]any{
		"id":        id,
		"progress":  progress,
		"succeeded": succeeded,
		"failed":    failed,
	})
	if err != nil {
		return fmt.Errorf("update run progress: %w", wrapQueryError(err))
	}
	return nil
}

// CompleteRun marks a run as completed with its final counters.
func (c *Client) CompleteRun(ctx context.Context, id string, succeeded, failed int) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("batch_run", $id) SET
			status = "completed",
			progress = $succeeded + $failed,
			succeeded = $succeeded,
			failed = $failed,
			completed_at = time::now()
	`, map[string]any{
		"id":        id,
		"succeeded": succeeded,
		"failed":    failed,
	})
	if err != nil {
		return fmt.Errorf("complete run: %w", wrapQueryError(err))
	}
	return nil
}

// FailRun marks a run as failed.
func (c *Client) FailRun(ctx context.Context, id, errMsg string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("batch_run", $id) SET
			status = "failed",
			error = $error,
			completed_at = time::now()
	`, map[string]any{"id": id, "error": errMsg})
	if err != nil {
		return fmt.Errorf("fail run: %w", wrapQueryError(err))
	}
	return nil
}

// RecordOutcome stores the audited outcome of one row.
func (c *Client) RecordOutcome(ctx context.Context, runID string, line int, outcome models.RowOutcome) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE row_outcome SET
			run_id = $run_id,
			line = $line,
			outcome = $outcome,
			created_at = time::now()
	`, map[string]any{
		"run_id":  runID,
		"line":    line,
		"outcome": outcomeFields(outcome),
	})
	if err != nil {
		return fmt.Errorf("record outcome: %w", wrapQueryError(err))
	}
	return nil
}

// GetRun retrieves a run by ID. Returns ErrNotFound if it does not exist.
func (c *Client) GetRun(ctx context.Context, id string) (*models.BatchRun, error) {
	results, err := surrealdb.Query[[]models.BatchRun](ctx, c.db, `
		SELECT * FROM type::record("batch_run", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// ListRuns returns the most recent runs first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]models.BatchRun, error) {
	if limit <= 0 {
		limit = 20
	}
	results, err := surrealdb.Query[[]models.BatchRun](ctx, c.db, `
		SELECT * FROM batch_run ORDER BY started_at DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if results != nil && len(*results) > 0 {
		return (*results)[0].Result, nil
	}
	return []models.BatchRun{}, nil
}

// ListOutcomes returns the outcomes of a run in input order.
func (c *Client) ListOutcomes(ctx context.Context, runID string) ([]models.OutcomeRecord, error) {
	results, err := surrealdb.Query[[]models.OutcomeRecord](ctx, c.db, `
		SELECT * FROM row_outcome WHERE run_id = $run_id ORDER BY line ASC
	`, map[string]any{"run_id": runID})
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	if results != nil && len(*results) > 0 {
		return (*results)[0].Result, nil
	}
	return []models.OutcomeRecord{}, nil
}

// DeleteRun removes a run and its outcomes. Returns the number of runs deleted.
func (c *Client) DeleteRun(ctx context.Context, id string) (int, error) {
	results, err := surrealdb.Query[[]any](ctx, c.db, `
		DELETE row_outcome WHERE run_id = $id;
		DELETE type::record("batch_run", $id) RETURN BEFORE;
	`, map[string]any{"id": id})
	if err != nil {
		return 0, fmt.Errorf("delete run: %w", err)
	}
	if results == nil || len(*results) < 2 {
		return 0, nil
	}
	return len((*results)[1].Result), nil
}

func outcomeFields(o models.RowOutcome) map[string]any {
	return map[string]any{
		"patient_id":                   o.PatientID,
		"case":                         o.Case,
		"plan":                         o.Plan,
		"beamset":                      o.Beamset,
		"patient_loaded":               o.PatientLoaded,
		"planning_structs_loaded":      o.PlanningStructsLoaded,
		"beams_loaded":                 o.BeamsLoaded,
		"clinical_goals_loaded":        o.ClinicalGoalsLoaded,
		"optimization_strategy_loaded": o.OptimizationStrategyLoaded,
		"optimization_complete":        o.OptimizationComplete,
		"status":                       o.Status,
	}
}
