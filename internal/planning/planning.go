// Package planning declares the operations batch provisioning needs from the
// clinical planning application. Adapters live in internal/client (live bridge)
// and internal/planning/planningtest (in-memory).
package planning

import (
	"context"
	"errors"

	"github.com/osama-ammar/ray-scripts/internal/models"
)

// ErrNotFound is returned when a looked-up entity does not exist.
var ErrNotFound = errors.New("not found")

// PatientFilter matches patients exactly on all three fields.
type PatientFilter struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	PatientID string `json:"patient_id"`
}

// PatientInfo is a patient database entry returned by a query.
type PatientInfo struct {
	Ref       string `json:"ref"`
	PatientID string `json:"patient_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// PlanSpec describes a plan to add to a case.
type PlanSpec struct {
	Name                string `json:"name"`
	PlannedBy           string `json:"planned_by"`
	Comment             string `json:"comment"`
	ExaminationName     string `json:"examination_name"`
	AllowDuplicateNames bool   `json:"allow_duplicate_names"`
}

// Entities resolves and creates patient, case, examination, and plan entities.
type Entities interface {
	QueryPatients(ctx context.Context, filter PatientFilter) ([]PatientInfo, error)
	LoadPatient(ctx context.Context, info PatientInfo) (models.Handle, error)
	// Case returns ErrNotFound when the patient has no case with that name.
	Case(ctx context.Context, patient models.Handle, name string) (models.Handle, error)
	// QueryExaminations returns examinations matching name, best match first.
	QueryExaminations(ctx context.Context, patient models.Handle, caseHandle models.Handle, name string) ([]models.Handle, error)
	// QueryPlans returns plans matching name, best match first.
	QueryPlans(ctx context.Context, caseHandle models.Handle, name string) ([]models.Handle, error)
	AddPlan(ctx context.Context, caseHandle models.Handle, spec PlanSpec) error
	// Plan returns ErrNotFound when the case has no plan with that name.
	Plan(ctx context.Context, caseHandle models.Handle, name string) (models.Handle, error)
}

// Session holds the application's "current" selection and persistence.
type Session interface {
	SetCurrent(ctx context.Context, h models.Handle) error
	SavePatient(ctx context.Context, patient models.Handle) error
}

// BeamSets queries and creates beamsets within a plan.
type BeamSets interface {
	// QueryBeamSetNames returns names of beamsets in plan starting with prefix.
	QueryBeamSetNames(ctx context.Context, plan models.Handle, prefix string) ([]string, error)
	CreateBeamSet(ctx context.Context, pc models.PatientContext, def models.BeamSetDefinition) (models.Handle, error)
}

// Geometry computes spatial quantities.
type Geometry interface {
	// Isocenter locates the center of target. ErrNotFound means the target has no geometry.
	Isocenter(ctx context.Context, caseHandle, exam, beamSet models.Handle, target string) (models.Isocenter, error)
}

// BeamPlacer inserts beams into a beamset.
type BeamPlacer interface {
	PlaceTomoBeam(ctx context.Context, plan, beamSet models.Handle, iso models.Isocenter, beam models.Beam) error
	PlaceBeams(ctx context.Context, beamSet models.Handle, iso models.Isocenter, beams []models.Beam) error
}

// RegionGenerator builds planning regions from a request.
type RegionGenerator interface {
	GenerateRegions(ctx context.Context, caseHandle, exam models.Handle, req models.RegionRequest) error
}

// Application is the full surface used by the batch driver.
type Application interface {
	Entities
	Session
	BeamSets
	Geometry
	BeamPlacer
	RegionGenerator
}
