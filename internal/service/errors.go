package service

import (
	"errors"
	"fmt"
)

var (
	// ErrBatchFatal marks failures that stop the whole batch run.
	ErrBatchFatal = errors.New("batch aborted")

	// ErrIsocenterNotFound indicates the isocenter target could not be located.
	// It is always wrapped together with ErrBatchFatal.
	ErrIsocenterNotFound = errors.New("isocenter target not found")

	// ErrNameSpaceExhausted indicates no free beamset name was found within the attempt cap.
	ErrNameSpaceExhausted = errors.New("no free beamset name")

	// errRowSkipped stops a row quietly; the stage has already set the outcome status.
	errRowSkipped = errors.New("row skipped")
)

// RowError is a row-terminal failure. Status is written to the audit record.
type RowError struct {
	Stage  string
	Status string
	Err    error
}

func (e *RowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Status)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

func rowError(stage, status string, err error) *RowError {
	return &RowError{Stage: stage, Status: status, Err: err}
}

// fatal wraps err so that errors.Is(result, ErrBatchFatal) holds.
func fatal(err error) error {
	return fmt.Errorf("%w: %w", ErrBatchFatal, err)
}
