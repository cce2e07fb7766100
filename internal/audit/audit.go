// Package audit writes the per-row outcome log of a batch run.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/osama-ammar/ray-scripts/internal/models"
)

// Separator between fields of the audit file.
const Separator = ",\t"

// Columns of the audit file in output order.
var Columns = []string{
	"PatientID", "Case", "Plan", "Beamset",
	"Patient Loaded", "Planning Structs Loaded", "Beams Loaded",
	"Clinical Goals Loaded", "Optimization Strategy Loaded", "Optimization Completed",
	"Plan Complete",
}

// Header is the first line of every audit file.
var Header = strings.Join(Columns, Separator) + "\n"

// OutputPath returns the audit path for a batch input: same directory,
// extension replaced with "_output.txt".
func OutputPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	return strings.TrimSuffix(inputPath, ext) + "_output.txt"
}

// Logger appends outcome records to one audit file.
// The file is opened and closed on every Append, so nothing is held open between rows.
type Logger struct {
	path string
	mu   sync.Mutex
}

// New creates a logger for path. The file is created on first Append.
func New(path string) *Logger {
	return &Logger{path: path}
}

// Path returns the audit file path.
func (l *Logger) Path() string {
	return l.path
}

// Append writes one record, writing the header first if the file is missing or empty.
func (l *Logger) Append(o models.RowOutcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	needHeader := true
	if info, err := os.Stat(l.path); err == nil && info.Size() > 0 {
		needHeader = false
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}

	var b strings.Builder
	if needHeader {
		b.WriteString(Header)
	}
	b.WriteString(FormatRecord(o))

	if _, err := f.WriteString(b.String()); err != nil {
		_ = f.Close()
		return fmt.Errorf("write audit record: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close audit file: %w", err)
	}
	return nil
}

// FormatRecord renders one outcome as an audit line including the trailing newline.
func FormatRecord(o models.RowOutcome) string {
	fields := []string{
		clean(o.PatientID),
		clean(o.Case),
		clean(o.Plan),
		clean(o.Beamset),
		formatBool(o.PatientLoaded),
		formatBool(o.PlanningStructsLoaded),
		formatBool(o.BeamsLoaded),
		formatBool(o.ClinicalGoalsLoaded),
		formatBool(o.OptimizationStrategyLoaded),
		formatBool(o.OptimizationComplete),
		clean(o.StatusOrDefault()),
	}
	return strings.Join(fields, Separator) + "\n"
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// clean keeps a value on a single line.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
