package models

// StatusSuccess is recorded when a row finishes without an explicit status.
const StatusSuccess = "success"

// RowOutcome is the audit record for one batch row.
type RowOutcome struct {
	PatientID string `json:"patient_id"`
	Case      string `json:"case"`
	Plan      string `json:"plan"`
	Beamset   string `json:"beamset"`

	PatientLoaded              bool `json:"patient_loaded"`
	PlanningStructsLoaded      bool `json:"planning_structs_loaded"`
	BeamsLoaded                bool `json:"beams_loaded"`
	ClinicalGoalsLoaded        bool `json:"clinical_goals_loaded"`
	OptimizationStrategyLoaded bool `json:"optimization_strategy_loaded"`
	OptimizationComplete       bool `json:"optimization_complete"`

	Status string `json:"status"`
}

// NewRowOutcome returns an outcome with every stage flag false.
func NewRowOutcome(row JobRow) RowOutcome {
	return RowOutcome{
		PatientID: row.PatientID,
		Case:      row.Case,
		Plan:      row.PlanName,
		Beamset:   row.BeamsetName,
	}
}

// StatusOrDefault returns the status message, or "success" when none was set.
func (o RowOutcome) StatusOrDefault() string {
	if o.Status == "" {
		return StatusSuccess
	}
	return o.Status
}

// Succeeded reports whether the row completed without an explicit status.
func (o RowOutcome) Succeeded() bool {
	return o.Status == ""
}
