package models

// Kind identifies the type of entity a Handle refers to.
type Kind string

const (
	KindPatient Kind = "patient"
	KindCase    Kind = "case"
	KindExam    Kind = "examination"
	KindPlan    Kind = "plan"
	KindBeamSet Kind = "beamset"
)

// Handle is an opaque reference to a live entity in the planning application.
type Handle struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IsZero reports whether the handle is unset.
func (h Handle) IsZero() bool {
	return h.ID == ""
}

// PatientContext holds the resolved handles for one row.
// Either Errors is non-empty and every handle is zero, or all four handles are set.
type PatientContext struct {
	Patient Handle
	Case    Handle
	Exam    Handle
	Plan    Handle
	Errors  []string
}

// Failed reports whether resolution failed.
func (p PatientContext) Failed() bool {
	return len(p.Errors) > 0
}

// Complete reports whether all four handles are set.
func (p PatientContext) Complete() bool {
	return !p.Patient.IsZero() && !p.Case.IsZero() && !p.Exam.IsZero() && !p.Plan.IsZero()
}

// FailedContext builds a context carrying only errors.
func FailedContext(errs ...string) PatientContext {
	return PatientContext{Errors: errs}
}
