package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// BatchRun is a persisted batch execution.
type BatchRun struct {
	ID          surrealmodels.RecordID `json:"id"`
	InputPath   string                 `json:"input_path"`
	OutputPath  string                 `json:"output_path"`
	Status      string                 `json:"status"`
	DryRun      bool                   `json:"dry_run"`
	Total       int                    `json:"total"`
	Progress    int                    `json:"progress"`
	Succeeded   int                    `json:"succeeded"`
	Failed      int                    `json:"failed"`
	Error       *string                `json:"error,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// OutcomeRecord is a persisted RowOutcome linked to its run.
type OutcomeRecord struct {
	ID        surrealmodels.RecordID `json:"id"`
	RunID     string                 `json:"run_id"`
	Line      int                    `json:"line"`
	Outcome   RowOutcome             `json:"outcome"`
	CreatedAt time.Time              `json:"created_at"`
}
