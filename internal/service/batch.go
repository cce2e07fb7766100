// Package service provides the batch provisioning pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/osama-ammar/ray-scripts/internal/metrics"
	"github.com/osama-ammar/ray-scripts/internal/models"
	"github.com/osama-ammar/ray-scripts/internal/planning"
)

// OutcomeWriter records one audit line per row.
type OutcomeWriter interface {
	Append(o models.RowOutcome) error
}

// Observer is notified as rows move through the batch.
type Observer interface {
	RowStarted(ctx context.Context, index, total int, row models.JobRow)
	RowFinished(ctx context.Context, index, total int, row models.JobRow, outcome models.RowOutcome)
}

// BatchOptions configures a BatchService.
type BatchOptions struct {
	// DryRun resolves entities, names and templates but creates nothing.
	DryRun bool
	// MaxNameAttempts caps the beamset name collision loop (default 100).
	MaxNameAttempts int
	// Rand drives name suffixes; nil uses a random seed.
	Rand      *rand.Rand
	Metrics   *metrics.Collector
	Observers []Observer
}

// BatchResult summarizes a run.
type BatchResult struct {
	Total     int
	Processed int
	Succeeded int
	Failed    int
	Outcomes  []models.RowOutcome
}

// BatchService drives rows through the provisioning stages one at a time.
type BatchService struct {
	app       planning.Application
	templates TemplateSource
	presets   PresetLoader
	audit     OutcomeWriter

	resolver  *Resolver
	names     *NameResolver
	placement *Placement

	metrics   *metrics.Collector
	observers []Observer
	dryRun    bool
}

// NewBatchService wires the pipeline around a planning application.
func NewBatchService(app planning.Application, templates TemplateSource, presets PresetLoader, audit OutcomeWriter, opts BatchOptions) *BatchService {
	collector := opts.Metrics
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &BatchService{
		app:       app,
		templates: templates,
		presets:   presets,
		audit:     audit,
		resolver:  NewResolver(app, app, opts.DryRun),
		names:     NewNameResolver(app, opts.Rand, opts.MaxNameAttempts),
		placement: NewPlacement(app, app),
		metrics:   collector,
		observers: opts.Observers,
		dryRun:    opts.DryRun,
	}
}

// Metrics returns the stage timing collector.
func (s *BatchService) Metrics() *metrics.Collector {
	return s.metrics
}

// Run processes rows in order. A failure confined to one row is audited and the
// next row starts. An error wrapping ErrBatchFatal stops the run; the result then
// covers the rows finished before it. Cancelling ctx stops the run between rows;
// calls made for the row in progress do not see the cancellation.
func (s *BatchService) Run(ctx context.Context, rows []models.JobRow) (*BatchResult, error) {
	result := &BatchResult{Total: len(rows)}
	slog.Info("batch started", "rows", len(rows), "dry_run", s.dryRun)

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("batch interrupted after %d of %d rows: %w", i, len(rows), err)
		}
		for _, o := range s.observers {
			o.RowStarted(ctx, i, len(rows), row)
		}

		// A started row always runs to its audit record; cancellation only stops the next one.
		outcome, err := s.processRow(context.WithoutCancel(ctx), row)
		if err != nil {
			slog.Error("batch aborted", "line", row.Line, "patient_id", row.PatientID, "error", err)
			return result, err
		}

		result.Processed++
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.Succeeded() {
			result.Succeeded++
		} else {
			result.Failed++
		}
		for _, o := range s.observers {
			o.RowFinished(ctx, i, len(rows), row, outcome)
		}
	}

	slog.Info("batch finished", "rows", result.Processed, "succeeded", result.Succeeded, "failed", result.Failed)
	return result, nil
}

// processRow runs the stage chain for one row and writes its audit record.
// Only batch-fatal failures are returned as errors.
func (s *BatchService) processRow(ctx context.Context, row models.JobRow) (models.RowOutcome, error) {
	rowStart := time.Now()
	state := &rowState{row: row, outcome: models.NewRowOutcome(row)}

	for _, st := range s.stages() {
		start := time.Now()
		err := s.runStage(ctx, st, state)
		if err == nil {
			s.metrics.RecordTiming(st.name, time.Since(start))
			continue
		}
		s.metrics.RecordFailure(st.name, time.Since(start))

		if errors.Is(err, ErrBatchFatal) {
			return state.outcome, err
		}

		var rowErr *RowError
		switch {
		case errors.As(err, &rowErr):
			state.outcome.Status = rowErr.Status
			slog.Warn("row failed", "line", row.Line, "patient_id", row.PatientID, "stage", rowErr.Stage,
				"status", rowErr.Status, "error", rowErr.Err)
		case errors.Is(err, errRowSkipped):
			slog.Info("row skipped", "line", row.Line, "patient_id", row.PatientID, "stage", st.name,
				"status", state.outcome.Status)
		default:
			state.outcome.Status = err.Error()
			slog.Warn("row failed", "line", row.Line, "patient_id", row.PatientID, "stage", st.name, "error", err)
		}
		break
	}

	start := time.Now()
	if err := s.audit.Append(state.outcome); err != nil {
		return state.outcome, fatal(fmt.Errorf("write audit record: %w", err))
	}
	s.metrics.RecordTiming(metrics.OpAudit, time.Since(start))
	s.metrics.RecordTiming(metrics.OpRow, time.Since(rowStart))

	slog.Info("row finished", "line", row.Line, "patient_id", row.PatientID, "plan", row.PlanName,
		"beamset", state.outcome.Beamset, "status", state.outcome.StatusOrDefault())
	return state.outcome, nil
}

// runStage converts a panic inside a stage into a row-terminal error.
func (s *BatchService) runStage(ctx context.Context, st stage, state *rowState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("stage panicked", "stage", st.name, "line", state.row.Line, "panic", r)
			err = rowError(st.name, fmt.Sprintf("Internal error in %s stage: %v", st.name, r), nil)
		}
	}()
	return st.run(ctx, state)
}
