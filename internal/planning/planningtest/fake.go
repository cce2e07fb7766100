// Package planningtest provides an in-memory planning application for tests
// and dry runs.
package planningtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/osama-ammar/ray-scripts/internal/models"
	"github.com/osama-ammar/ray-scripts/internal/planning"
)

var _ planning.Application = (*Fake)(nil)

// Patient is a patient record in the fake database.
type Patient struct {
	Info  planning.PatientInfo
	Cases []*Case
	Saves int
}

// Case is a case with its examinations and plans.
type Case struct {
	Name  string
	Exams []string
	Plans []*Plan
}

// Plan is a treatment plan.
type Plan struct {
	Spec     planning.PlanSpec
	BeamSets []*BeamSet
}

// BeamSet is a created beamset with whatever was placed into it.
type BeamSet struct {
	Def       models.BeamSetDefinition
	Iso       *models.Isocenter
	TomoBeam  *models.Beam
	Beams     []models.Beam
	Technique string
}

// Fake is an in-memory planning.Application. Build the database with AddPatient,
// then hand the fake to the code under test. Fn fields override behavior.
type Fake struct {
	mu sync.Mutex

	patients []*Patient
	handles  map[string]any

	// Structures maps structure name to its center; Isocenter fails for others.
	Structures map[string]models.Isocenter

	// Current holds the last handle selected per kind.
	Current map[models.Kind]models.Handle
	// Calls records mutating calls in order, e.g. "SetCurrent plan Plan_HN".
	Calls []string
	// Regions records every generation request.
	Regions []models.RegionRequest

	AddPlanFn         func(spec planning.PlanSpec) error
	IsocenterFn       func(target string) (models.Isocenter, error)
	GenerateRegionsFn func(req models.RegionRequest) error
	CreateBeamSetFn   func(def models.BeamSetDefinition) error
}

// New creates an empty fake.
func New() *Fake {
	return &Fake{
		handles:    map[string]any{},
		Structures: map[string]models.Isocenter{},
		Current:    map[models.Kind]models.Handle{},
	}
}

// AddPatient adds a patient to the database.
func (f *Fake) AddPatient(patientID, first, last string) *Patient {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &Patient{Info: planning.PatientInfo{
		Ref:       fmt.Sprintf("patient-%d", len(f.patients)+1),
		PatientID: patientID,
		FirstName: first,
		LastName:  last,
	}}
	f.patients = append(f.patients, p)
	return p
}

// AddCase adds a case with examinations.
func (p *Patient) AddCase(name string, exams ...string) *Case {
	c := &Case{Name: name, Exams: exams}
	p.Cases = append(p.Cases, c)
	return c
}

// AddPlan adds an existing plan.
func (c *Case) AddPlan(name string) *Plan {
	pl := &Plan{Spec: planning.PlanSpec{Name: name}}
	c.Plans = append(c.Plans, pl)
	return pl
}

// AddBeamSet adds an existing beamset name.
func (pl *Plan) AddBeamSet(name string) *BeamSet {
	bs := &BeamSet{Def: models.BeamSetDefinition{Name: name}}
	pl.BeamSets = append(pl.BeamSets, bs)
	return bs
}

// BeamSetNames lists the names of all beamsets in the plan.
func (pl *Plan) BeamSetNames() []string {
	names := make([]string, 0, len(pl.BeamSets))
	for _, bs := range pl.BeamSets {
		names = append(names, bs.Def.Name)
	}
	return names
}

// FindPlan returns a plan by case and name, for assertions.
func (p *Patient) FindPlan(caseName, planName string) *Plan {
	for _, c := range p.Cases {
		if c.Name != caseName {
			continue
		}
		for _, pl := range c.Plans {
			if pl.Spec.Name == planName {
				return pl
			}
		}
	}
	return nil
}

// FindBeamSet returns a beamset by name, for assertions.
func (pl *Plan) FindBeamSet(name string) *BeamSet {
	for _, bs := range pl.BeamSets {
		if bs.Def.Name == name {
			return bs
		}
	}
	return nil
}

func (f *Fake) handle(kind models.Kind, name string, obj any) models.Handle {
	for id, o := range f.handles {
		if o == obj {
			return models.Handle{Kind: kind, ID: id, Name: name}
		}
	}
	id := fmt.Sprintf("%s-%d", kind, len(f.handles)+1)
	f.handles[id] = obj
	return models.Handle{Kind: kind, ID: id, Name: name}
}

func lookup[T any](f *Fake, h models.Handle) (T, error) {
	var zero T
	obj, ok := f.handles[h.ID]
	if !ok {
		return zero, fmt.Errorf("unknown %s handle %q: %w", h.Kind, h.ID, planning.ErrNotFound)
	}
	t, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("handle %q is not a %s", h.ID, h.Kind)
	}
	return t, nil
}

func (f *Fake) record(format string, args ...any) {
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
}

// QueryPatients matches all three identity fields exactly.
func (f *Fake) QueryPatients(_ context.Context, filter planning.PatientFilter) ([]planning.PatientInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []planning.PatientInfo
	for _, p := range f.patients {
		if p.Info.FirstName == filter.FirstName && p.Info.LastName == filter.LastName && p.Info.PatientID == filter.PatientID {
			out = append(out, p.Info)
		}
	}
	return out, nil
}

func (f *Fake) LoadPatient(_ context.Context, info planning.PatientInfo) (models.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.patients {
		if p.Info.Ref == info.Ref {
			f.record("LoadPatient %s", info.PatientID)
			return f.handle(models.KindPatient, info.PatientID, p), nil
		}
	}
	return models.Handle{}, fmt.Errorf("patient %s: %w", info.Ref, planning.ErrNotFound)
}

func (f *Fake) Case(_ context.Context, patient models.Handle, name string) (models.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := lookup[*Patient](f, patient)
	if err != nil {
		return models.Handle{}, err
	}
	for _, c := range p.Cases {
		if c.Name == name {
			return f.handle(models.KindCase, name, c), nil
		}
	}
	return models.Handle{}, fmt.Errorf("case %s: %w", name, planning.ErrNotFound)
}

// QueryExaminations returns examinations whose name starts with name, in insertion order.
func (f *Fake) QueryExaminations(_ context.Context, _ models.Handle, caseHandle models.Handle, name string) ([]models.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := lookup[*Case](f, caseHandle)
	if err != nil {
		return nil, err
	}
	var out []models.Handle
	for _, e := range c.Exams {
		if strings.HasPrefix(e, name) {
			out = append(out, models.Handle{Kind: models.KindExam, ID: caseHandle.ID + "/exam/" + e, Name: e})
		}
	}
	return out, nil
}

// QueryPlans returns plans whose name starts with name, in insertion order.
func (f *Fake) QueryPlans(_ context.Context, caseHandle models.Handle, name string) ([]models.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := lookup[*Case](f, caseHandle)
	if err != nil {
		return nil, err
	}
	var out []models.Handle
	for _, pl := range c.Plans {
		if strings.HasPrefix(pl.Spec.Name, name) {
			out = append(out, f.handle(models.KindPlan, pl.Spec.Name, pl))
		}
	}
	return out, nil
}

func (f *Fake) AddPlan(_ context.Context, caseHandle models.Handle, spec planning.PlanSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := lookup[*Case](f, caseHandle)
	if err != nil {
		return err
	}
	f.record("AddPlan %s", spec.Name)
	if f.AddPlanFn != nil {
		return f.AddPlanFn(spec)
	}
	if !spec.AllowDuplicateNames {
		for _, pl := range c.Plans {
			if pl.Spec.Name == spec.Name {
				return fmt.Errorf("plan %s already exists", spec.Name)
			}
		}
	}
	c.Plans = append(c.Plans, &Plan{Spec: spec})
	return nil
}

func (f *Fake) Plan(_ context.Context, caseHandle models.Handle, name string) (models.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := lookup[*Case](f, caseHandle)
	if err != nil {
		return models.Handle{}, err
	}
	for _, pl := range c.Plans {
		if pl.Spec.Name == name {
			return f.handle(models.KindPlan, name, pl), nil
		}
	}
	return models.Handle{}, fmt.Errorf("plan %s: %w", name, planning.ErrNotFound)
}

func (f *Fake) SetCurrent(_ context.Context, h models.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Current[h.Kind] = h
	f.record("SetCurrent %s %s", h.Kind, h.Name)
	return nil
}

func (f *Fake) SavePatient(_ context.Context, patient models.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := lookup[*Patient](f, patient)
	if err != nil {
		return err
	}
	p.Saves++
	f.record("SavePatient %s", patient.Name)
	return nil
}

// QueryBeamSetNames returns beamset names starting with prefix.
func (f *Fake) QueryBeamSetNames(_ context.Context, plan models.Handle, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pl, err := lookup[*Plan](f, plan)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, bs := range pl.BeamSets {
		if strings.HasPrefix(bs.Def.Name, prefix) {
			out = append(out, bs.Def.Name)
		}
	}
	return out, nil
}

func (f *Fake) CreateBeamSet(_ context.Context, pc models.PatientContext, def models.BeamSetDefinition) (models.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pl, err := lookup[*Plan](f, pc.Plan)
	if err != nil {
		return models.Handle{}, err
	}
	f.record("CreateBeamSet %s", def.Name)
	if f.CreateBeamSetFn != nil {
		if err := f.CreateBeamSetFn(def); err != nil {
			return models.Handle{}, err
		}
	}
	for _, bs := range pl.BeamSets {
		if bs.Def.Name == def.Name {
			return models.Handle{}, fmt.Errorf("beamset %s already exists", def.Name)
		}
	}
	bs := &BeamSet{Def: def, Technique: def.Technique}
	pl.BeamSets = append(pl.BeamSets, bs)
	return f.handle(models.KindBeamSet, def.Name, bs), nil
}

func (f *Fake) Isocenter(_ context.Context, _, _, beamSet models.Handle, target string) (models.Isocenter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var iso models.Isocenter
	if f.IsocenterFn != nil {
		var err error
		if iso, err = f.IsocenterFn(target); err != nil {
			return models.Isocenter{}, err
		}
	} else {
		var ok bool
		if iso, ok = f.Structures[target]; !ok {
			return models.Isocenter{}, fmt.Errorf("structure %s: %w", target, planning.ErrNotFound)
		}
	}
	if bs, err := lookup[*BeamSet](f, beamSet); err == nil {
		bs.Iso = &iso
	}
	return iso, nil
}

func (f *Fake) PlaceTomoBeam(_ context.Context, _, beamSet models.Handle, _ models.Isocenter, beam models.Beam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bs, err := lookup[*BeamSet](f, beamSet)
	if err != nil {
		return err
	}
	f.record("PlaceTomoBeam %s", beam.Name)
	bs.TomoBeam = &beam
	return nil
}

func (f *Fake) PlaceBeams(_ context.Context, beamSet models.Handle, _ models.Isocenter, beams []models.Beam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bs, err := lookup[*BeamSet](f, beamSet)
	if err != nil {
		return err
	}
	f.record("PlaceBeams %d", len(beams))
	bs.Beams = append(bs.Beams, beams...)
	return nil
}

func (f *Fake) GenerateRegions(_ context.Context, _, _ models.Handle, req models.RegionRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GenerateRegions %s", req.Workflow)
	if f.GenerateRegionsFn != nil {
		if err := f.GenerateRegionsFn(req); err != nil {
			return err
		}
	}
	f.Regions = append(f.Regions, req)
	return nil
}
