// Package models defines data structures for batch plan provisioning.
package models

// TargetDose is one prescribed target structure and its dose in cGy.
type TargetDose struct {
	Name string  `json:"name" yaml:"name"`
	Dose float64 `json:"dose" yaml:"dose"`
}

// JobRow is one line of a batch file.
type JobRow struct {
	Line int // 1-based line in the source file, header is line 1

	PatientID string
	FirstName string
	LastName  string

	Case            string
	ExaminationName string
	PlanName        string
	BeamsetName     string

	// Protocol reference
	BeamsetPath     string
	BeamsetFile     string
	ProtocolBeamset string

	Machine         string
	Isotarget       string
	NumberFractions int
	NumberTargets   int

	// Informational hints, the protocol template decides the technique
	Modality  string
	Technique string

	// Ordered, consecutive target/dose pairs (Target01/TargetDose01, ...)
	Targets []TargetDose

	PlanningStructureWorkflow string
	PlanningStructurePath     string
	PlanningStructureFile     string

	// Err is set when the row could not be parsed. The row still produces an audit record.
	Err error
}

// PrescriptionTarget returns the first target/dose pair, which carries the prescription.
func (r JobRow) PrescriptionTarget() (TargetDose, bool) {
	if len(r.Targets) == 0 {
		return TargetDose{}, false
	}
	return r.Targets[0], true
}

// HasWorkflow reports whether the row asks for planning-structure generation.
func (r JobRow) HasWorkflow() bool {
	return r.PlanningStructureWorkflow != ""
}
