package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/osama-ammar/ray-scripts/internal/models"
	"github.com/osama-ammar/ray-scripts/internal/planning"
)

// PlacementResult reports whether beams went in and, if not, why.
type PlacementResult struct {
	BeamsLoaded bool
	Status      string
}

// Placement applies the isocenter and dispatches beam insertion on technique.
type Placement struct {
	geometry planning.Geometry
	placer   planning.BeamPlacer
}

// NewPlacement creates a placement stage.
func NewPlacement(geometry planning.Geometry, placer planning.BeamPlacer) *Placement {
	return &Placement{geometry: geometry, placer: placer}
}

// Place computes the isocenter of def.IsoTarget and inserts beams according to def.Technique.
// An isocenter failure is returned wrapped in ErrBatchFatal, unless the call was cut short
// by its context. Insertion errors are returned as-is; technique mismatches are reported
// in the result, not as errors.
func (p *Placement) Place(ctx context.Context, pc models.PatientContext, beamSet models.Handle, def models.BeamSetDefinition, beams []models.Beam) (PlacementResult, error) {
	iso, err := p.geometry.Isocenter(ctx, pc.Case, pc.Exam, beamSet, def.IsoTarget)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return PlacementResult{}, fmt.Errorf("isocenter of %s: %w", def.IsoTarget, err)
	}
	if err != nil {
		slog.Warn("aborting, could not locate isocenter target", "target", def.IsoTarget, "beamset", def.Name, "error", err)
		return PlacementResult{}, fatal(fmt.Errorf("%w: could not locate center of %s: %w", ErrIsocenterNotFound, def.IsoTarget, err))
	}

	switch def.Technique {
	case models.TechniqueTomoHelical:
		if len(beams) != 1 {
			slog.Warn("invalid tomo beamset, expected exactly one beam", "beamset", def.Name, "beams", len(beams))
			return PlacementResult{Status: fmt.Sprintf("Invalid tomo beamset %s, expected one beam, found %d", def.Name, len(beams))}, nil
		}
		if err := p.placer.PlaceTomoBeam(ctx, pc.Plan, beamSet, iso, beams[0]); err != nil {
			return PlacementResult{}, fmt.Errorf("place tomo beam: %w", err)
		}
		return PlacementResult{BeamsLoaded: true}, nil

	case models.TechniqueVMAT:
		if len(beams) == 0 {
			slog.Warn("protocol beamset has no beams", "beamset", def.Name, "protocol", def.ProtocolName)
			return PlacementResult{Status: fmt.Sprintf("No beams found in protocol beamset %s", def.ProtocolName)}, nil
		}
		if err := p.placer.PlaceBeams(ctx, beamSet, iso, beams); err != nil {
			return PlacementResult{}, fmt.Errorf("place beams: %w", err)
		}
		return PlacementResult{BeamsLoaded: true}, nil

	default:
		slog.Debug("unsupported beamset technique", "technique", def.Technique, "beamset", def.Name)
		return PlacementResult{Status: fmt.Sprintf("Unsupported beamset technique %s", def.Technique)}, nil
	}
}
