// Package parser reads batch files and planning-structure preference datasets.
package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/osama-ammar/ray-scripts/internal/models"
)

// Column names of a batch file.
const (
	ColPatientID                 = "PatientID"
	ColFirstName                 = "FirstName"
	ColLastName                  = "LastName"
	ColCase                      = "Case"
	ColExaminationName           = "ExaminationName"
	ColPlanName                  = "PlanName"
	ColBeamsetName               = "BeamsetName"
	ColBeamsetPath               = "BeamsetPath"
	ColBeamsetFile               = "BeamsetFile"
	ColProtocolBeamset           = "ProtocolBeamset"
	ColNumberFractions           = "NumberFractions"
	ColMachine                   = "Machine"
	ColIsotarget                 = "Isotarget"
	ColNumberTargets             = "NumberTargets"
	ColModality                  = "Modality"
	ColTechnique                 = "Technique"
	ColPlanningStructureWorkflow = "PlanningStructureWorkflow"
	ColPlanningStructurePath     = "PlanningStructurePath"
	ColPlanningStructureFile     = "PlanningStructureFile"
)

// RequiredColumns must be present in every batch file header.
var RequiredColumns = []string{
	ColPatientID, ColFirstName, ColLastName, ColCase, ColExaminationName,
	ColPlanName, ColBeamsetName, ColBeamsetPath, ColBeamsetFile, ColProtocolBeamset,
	ColNumberFractions, ColMachine, ColIsotarget, ColNumberTargets,
}

// ErrInvalidHeader indicates the batch file header cannot be used.
var ErrInvalidHeader = errors.New("invalid batch header")

var targetColumnRe = regexp.MustCompile(`^Target(Dose)?(\d+)$`)

// Batch is a parsed batch file.
type Batch struct {
	Header []string
	// TargetPairs is the number of consecutive TargetNN/TargetDoseNN column pairs.
	TargetPairs int
	Rows        []models.JobRow
}

// ReadBatchFile opens and parses a batch file.
func ReadBatchFile(path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()
	return ReadBatch(f)
}

// ReadBatch parses comma-separated batch rows. Header problems fail the whole file;
// problems confined to one row are recorded on JobRow.Err so the row can still be audited.
func ReadBatch(r io.Reader) (*Batch, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrInvalidHeader)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrInvalidHeader, name)
		}
		index[name] = i
	}
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", ErrInvalidHeader, strings.Join(missing, ", "))
	}

	pairs, err := targetPairs(header)
	if err != nil {
		return nil, err
	}

	batch := &Batch{Header: header, TargetPairs: pairs}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				batch.Rows = append(batch.Rows, models.JobRow{Line: parseErr.StartLine, Err: err})
				continue
			}
			return nil, fmt.Errorf("read batch: %w", err)
		}
		if blank(record) {
			continue
		}
		line, _ := cr.FieldPos(0)
		batch.Rows = append(batch.Rows, parseRow(line, record, index, pairs))
	}
	return batch, nil
}

// targetPairs counts the TargetNN/TargetDoseNN column pairs numbered 01..N. Counting
// stops at the first number missing either column; later target columns are ignored.
func targetPairs(header []string) (int, error) {
	names := map[int]bool{}
	doses := map[int]bool{}
	for _, col := range header {
		m := targetColumnRe.FindStringSubmatch(col)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil || n < 1 {
			return 0, fmt.Errorf("%w: bad target column %q", ErrInvalidHeader, col)
		}
		if m[1] == "" {
			names[n] = true
		} else {
			doses[n] = true
		}
	}

	pairs := 0
	for names[pairs+1] && doses[pairs+1] {
		pairs++
	}

	var ignored []string
	for n := range names {
		if n > pairs {
			ignored = append(ignored, targetColumn(n))
		}
	}
	for n := range doses {
		if n > pairs {
			ignored = append(ignored, doseColumn(n))
		}
	}
	if len(ignored) > 0 {
		sort.Strings(ignored)
		slog.Warn("target columns after an incomplete pair are ignored",
			"missing", fmt.Sprintf("%s/%s", targetColumn(pairs+1), doseColumn(pairs+1)),
			"ignored", ignored)
	}
	return pairs, nil
}

func targetColumn(n int) string { return fmt.Sprintf("Target%02d", n) }
func doseColumn(n int) string   { return fmt.Sprintf("TargetDose%02d", n) }

func parseRow(line int, record []string, index map[string]int, pairs int) models.JobRow {
	get := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	row := models.JobRow{
		Line:                      line,
		PatientID:                 get(ColPatientID),
		FirstName:                 get(ColFirstName),
		LastName:                  get(ColLastName),
		Case:                      get(ColCase),
		ExaminationName:           get(ColExaminationName),
		PlanName:                  get(ColPlanName),
		BeamsetName:               get(ColBeamsetName),
		BeamsetPath:               get(ColBeamsetPath),
		BeamsetFile:               get(ColBeamsetFile),
		ProtocolBeamset:           get(ColProtocolBeamset),
		Machine:                   get(ColMachine),
		Isotarget:                 get(ColIsotarget),
		Modality:                  get(ColModality),
		Technique:                 get(ColTechnique),
		PlanningStructureWorkflow: get(ColPlanningStructureWorkflow),
		PlanningStructurePath:     get(ColPlanningStructurePath),
		PlanningStructureFile:     get(ColPlanningStructureFile),
	}

	var errs []error
	var err error
	if row.NumberFractions, err = parseCount(get(ColNumberFractions)); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", ColNumberFractions, err))
	}
	if row.NumberTargets, err = parseCount(get(ColNumberTargets)); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", ColNumberTargets, err))
	}
	if row.Targets, err = ExtractTargets(get, pairs); err != nil {
		errs = append(errs, err)
	}
	if row.HasWorkflow() && (row.PlanningStructurePath == "" || row.PlanningStructureFile == "") {
		errs = append(errs, fmt.Errorf("%s and %s are required when %s is set",
			ColPlanningStructurePath, ColPlanningStructureFile, ColPlanningStructureWorkflow))
	}
	if len(errs) > 0 {
		row.Err = fmt.Errorf("line %d: %w", line, errors.Join(errs...))
	}
	return row
}

// ExtractTargets builds the ordered target list from the first pairs column pairs.
// A pair with an empty target name or an empty/NaN dose is left out.
// A later target with the same name replaces the earlier dose in place.
func ExtractTargets(get func(col string) string, pairs int) ([]models.TargetDose, error) {
	var targets []models.TargetDose
	seen := map[string]int{}
	for n := 1; n <= pairs; n++ {
		name := get(targetColumn(n))
		rawDose := get(doseColumn(n))
		dose, ok, err := parseDose(rawDose)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", doseColumn(n), err)
		}
		if !ok || name == "" {
			continue
		}
		if i, dup := seen[name]; dup {
			targets[i].Dose = dose
			continue
		}
		seen[name] = len(targets)
		targets = append(targets, models.TargetDose{Name: name, Dose: dose})
	}
	return targets, nil
}

func parseDose(s string) (float64, bool, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	if math.IsNaN(f) {
		return 0, false, nil
	}
	return f, true, nil
}

// parseCount accepts integers written as "30" or "30.0".
func parseCount(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("not a whole number: %q", s)
	}
	return int(f), nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
