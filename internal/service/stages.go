package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/osama-ammar/ray-scripts/internal/metrics"
	"github.com/osama-ammar/ray-scripts/internal/models"
	"github.com/osama-ammar/ray-scripts/internal/protocol"
)

// rowState is what one row carries from stage to stage.
type rowState struct {
	row     models.JobRow
	outcome models.RowOutcome

	pc      models.PatientContext
	name    string
	tmpl    *models.BeamSetTemplate
	def     models.BeamSetDefinition
	beamSet models.Handle
}

// stage is one step of the per-row chain. It returns nil to continue, a *RowError
// to end the row with a status, errRowSkipped to end the row with the status it
// already set, or an error wrapping ErrBatchFatal.
type stage struct {
	name string
	run  func(ctx context.Context, st *rowState) error
}

func (s *BatchService) stages() []stage {
	return []stage{
		{metrics.OpLoad, s.loadStage},
		{metrics.OpName, s.nameStage},
		{metrics.OpTemplate, s.templateStage},
		{metrics.OpPlace, s.placeStage},
		{metrics.OpStructures, s.structuresStage},
	}
}

func (s *BatchService) loadStage(ctx context.Context, st *rowState) error {
	if st.row.Err != nil {
		return rowError(metrics.OpLoad, fmt.Sprintf("Invalid row: %v", st.row.Err), st.row.Err)
	}

	pc := s.resolver.Resolve(ctx, QueryFromRow(st.row))
	if pc.Failed() {
		return rowError(metrics.OpLoad, strings.Join(pc.Errors, "; "), nil)
	}
	if !pc.Complete() {
		return rowError(metrics.OpLoad, fmt.Sprintf("Incomplete planning context for patient %s", st.row.PatientID), nil)
	}

	for _, h := range []models.Handle{pc.Patient, pc.Case, pc.Plan} {
		if err := s.app.SetCurrent(ctx, h); err != nil {
			return rowError(metrics.OpLoad, fmt.Sprintf("Could not select %s %s: %v", h.Kind, h.Name, err), err)
		}
	}

	st.pc = pc
	st.outcome.PatientLoaded = true
	return nil
}

func (s *BatchService) nameStage(ctx context.Context, st *rowState) error {
	name, err := s.names.Unique(ctx, st.pc.Plan, st.row.BeamsetName)
	if err != nil {
		return rowError(metrics.OpName, fmt.Sprintf("Could not find a free beamset name for %s", st.row.BeamsetName), err)
	}
	if name != st.row.BeamsetName {
		slog.Info("beamset name in use, renamed", "requested", st.row.BeamsetName, "name", name)
	}
	st.name = name
	st.outcome.Beamset = name
	return nil
}

func (s *BatchService) templateStage(ctx context.Context, st *rowState) error {
	ref := TemplateRef(st.row)
	tmpl, err := s.templates.Template(ctx, ref)
	if errors.Is(err, protocol.ErrTemplateNotFound) {
		return rowError(metrics.OpTemplate, fmt.Sprintf("Protocol beamset %s not found", st.row.ProtocolBeamset), err)
	}
	if err != nil {
		return rowError(metrics.OpTemplate, fmt.Sprintf("Could not read protocol %s: %v", st.row.BeamsetFile, err), err)
	}

	def, err := BuildDefinition(st.row, st.name, tmpl)
	if err != nil {
		return rowError(metrics.OpTemplate, fmt.Sprintf("Invalid beamset definition: %v", err), err)
	}
	st.tmpl = tmpl
	st.def = def
	return nil
}

func (s *BatchService) placeStage(ctx context.Context, st *rowState) error {
	if s.dryRun {
		st.outcome.Status = fmt.Sprintf("Dry run: would create %s beamset %s with %d beams",
			st.def.Technique, st.def.Name, len(st.tmpl.Beams))
		return errRowSkipped
	}

	beamSet, err := s.app.CreateBeamSet(ctx, st.pc, st.def)
	if err != nil {
		return rowError(metrics.OpPlace, fmt.Sprintf("Could not create beamset %s: %v", st.def.Name, err), err)
	}
	st.beamSet = beamSet
	if err := s.app.SavePatient(ctx, st.pc.Patient); err != nil {
		return rowError(metrics.OpPlace, fmt.Sprintf("Could not save patient: %v", err), err)
	}
	if err := s.app.SetCurrent(ctx, beamSet); err != nil {
		return rowError(metrics.OpPlace, fmt.Sprintf("Could not select beamset %s: %v", st.def.Name, err), err)
	}

	beams, err := s.templates.Beams(ctx, TemplateRef(st.row))
	if err != nil {
		return rowError(metrics.OpPlace, fmt.Sprintf("Could not load beams of %s: %v", st.row.ProtocolBeamset, err), err)
	}

	res, err := s.placement.Place(ctx, st.pc, beamSet, st.def, beams)
	if err != nil {
		if errors.Is(err, ErrBatchFatal) {
			return err
		}
		return rowError(metrics.OpPlace, fmt.Sprintf("Beam placement failed: %v", err), err)
	}
	if !res.BeamsLoaded {
		st.outcome.Status = res.Status
		return errRowSkipped
	}
	st.outcome.BeamsLoaded = true

	if err := s.app.SavePatient(ctx, st.pc.Patient); err != nil {
		return rowError(metrics.OpPlace, fmt.Sprintf("Could not save patient: %v", err), err)
	}
	if err := s.app.SetCurrent(ctx, beamSet); err != nil {
		return rowError(metrics.OpPlace, fmt.Sprintf("Could not select beamset %s: %v", st.def.Name, err), err)
	}
	return nil
}

func (s *BatchService) structuresStage(ctx context.Context, st *rowState) error {
	row := st.row
	if !row.HasWorkflow() {
		return nil
	}

	preset, err := s.presets.Preset(ctx, row.PlanningStructurePath, row.PlanningStructureFile, row.PlanningStructureWorkflow)
	if errors.Is(err, protocol.ErrPresetNotFound) {
		st.outcome.Status = fmt.Sprintf("Planning structure workflow %s not found", row.PlanningStructureWorkflow)
		return errRowSkipped
	}
	if err != nil {
		return rowError(metrics.OpStructures, fmt.Sprintf("Could not load planning structure preferences %s: %v", row.PlanningStructureFile, err), err)
	}

	req, err := TranslatePreset(row, preset)
	if err != nil {
		return rowError(metrics.OpStructures, fmt.Sprintf("Invalid planning structure workflow %s: %v", row.PlanningStructureWorkflow, err), err)
	}
	if err := s.app.GenerateRegions(ctx, st.pc.Case, st.pc.Exam, req); err != nil {
		return rowError(metrics.OpStructures, fmt.Sprintf("Planning structure generation failed: %v", err), err)
	}
	st.outcome.PlanningStructsLoaded = true
	return nil
}
