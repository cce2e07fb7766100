package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/osama-ammar/ray-scripts/internal/models"
	"github.com/osama-ammar/ray-scripts/internal/planning"
)

// Values recorded on plans created by the batch.
const (
	PlanCreatedBy = "H.A.L."
	PlanComment   = "Diagnosis"
)

var errDryRunPlan = errors.New("plan not created in dry run")

// EntityQuery identifies the entities one row works on.
type EntityQuery struct {
	PatientID string
	FirstName string
	LastName  string
	Case      string
	Exam      string
	Plan      string
}

// QueryFromRow builds the entity query of a batch row.
func QueryFromRow(row models.JobRow) EntityQuery {
	return EntityQuery{
		PatientID: row.PatientID,
		FirstName: row.FirstName,
		LastName:  row.LastName,
		Case:      row.Case,
		Exam:      row.ExaminationName,
		Plan:      row.PlanName,
	}
}

// Resolver maps an entity query to live handles, creating the plan when absent.
type Resolver struct {
	entities planning.Entities
	session  planning.Session
	readOnly bool
}

// NewResolver creates a resolver. A read-only resolver never creates plans.
func NewResolver(entities planning.Entities, session planning.Session, readOnly bool) *Resolver {
	return &Resolver{entities: entities, session: session, readOnly: readOnly}
}

// Resolve returns a context with all four handles, or one with only Errors set.
func (r *Resolver) Resolve(ctx context.Context, q EntityQuery) models.PatientContext {
	patients, err := r.entities.QueryPatients(ctx, planning.PatientFilter{
		FirstName: q.FirstName,
		LastName:  q.LastName,
		PatientID: q.PatientID,
	})
	if err != nil {
		return failed("query patient %s: %v", q.PatientID, err)
	}
	if len(patients) != 1 {
		slog.Debug("patient query did not match exactly once", "patient_id", q.PatientID, "matches", len(patients))
		return models.FailedContext(fmt.Sprintf("Patient %s %s, ID: %s not found", q.FirstName, q.LastName, q.PatientID))
	}

	patient, err := r.entities.LoadPatient(ctx, patients[0])
	if err != nil {
		return failed("load patient %s: %v", q.PatientID, err)
	}

	caseHandle, err := r.entities.Case(ctx, patient, q.Case)
	if errors.Is(err, planning.ErrNotFound) {
		return models.FailedContext(fmt.Sprintf("Case %s not found", q.Case))
	}
	if err != nil {
		return failed("load case %s: %v", q.Case, err)
	}

	exams, err := r.entities.QueryExaminations(ctx, patient, caseHandle, q.Exam)
	if err != nil {
		return failed("query exam %s: %v", q.Exam, err)
	}
	if len(exams) == 0 || exams[0].Name != q.Exam {
		return models.FailedContext(fmt.Sprintf("Exam %s not found", q.Exam))
	}
	exam := exams[0]

	plan, err := r.plan(ctx, patient, caseHandle, exam, q.Plan)
	if err != nil {
		if errors.Is(err, errDryRunPlan) {
			return models.FailedContext(fmt.Sprintf("Plan %s does not exist and would be created", q.Plan))
		}
		if errors.Is(err, planning.ErrNotFound) {
			return models.FailedContext(fmt.Sprintf("Plan %s not found", q.Plan))
		}
		return failed("load plan %s: %v", q.Plan, err)
	}

	return models.PatientContext{Patient: patient, Case: caseHandle, Exam: exam, Plan: plan}
}

// plan returns the named plan, adding it to the case and saving the patient first if absent.
func (r *Resolver) plan(ctx context.Context, patient, caseHandle, exam models.Handle, name string) (models.Handle, error) {
	plans, err := r.entities.QueryPlans(ctx, caseHandle, name)
	if err != nil {
		return models.Handle{}, err
	}
	if len(plans) > 0 && plans[0].Name == name {
		return r.entities.Plan(ctx, caseHandle, name)
	}

	if r.readOnly {
		slog.Info("dry run, plan would be created", "plan", name, "case", caseHandle.Name)
		return models.Handle{}, errDryRunPlan
	}

	err = r.entities.AddPlan(ctx, caseHandle, planning.PlanSpec{
		Name:                name,
		PlannedBy:           PlanCreatedBy,
		Comment:             PlanComment,
		ExaminationName:     exam.Name,
		AllowDuplicateNames: false,
	})
	if err != nil {
		slog.Warn("failed to add plan", "plan", name, "error", err)
	} else {
		slog.Info("plan created", "plan", name, "case", caseHandle.Name)
		if err := r.session.SavePatient(ctx, patient); err != nil {
			return models.Handle{}, fmt.Errorf("save patient: %w", err)
		}
	}

	return r.entities.Plan(ctx, caseHandle, name)
}

func failed(format string, args ...any) models.PatientContext {
	return models.FailedContext(fmt.Sprintf(format, args...))
}
