package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/osama-ammar/ray-scripts/internal/models"
	"github.com/osama-ammar/ray-scripts/internal/protocol"
)

// TemplateSource resolves protocol beamsets.
type TemplateSource interface {
	Template(ctx context.Context, ref protocol.Ref) (*models.BeamSetTemplate, error)
	Beams(ctx context.Context, ref protocol.Ref) ([]models.Beam, error)
}

var (
	errNoTechnique          = errors.New("protocol beamset has no technique")
	errNoProtocolName       = errors.New("protocol beamset has no name")
	errNoPrescriptionTarget = errors.New("no prescription target (Target01/TargetDose01)")
)

// TemplateRef returns the protocol reference of a row.
func TemplateRef(row models.JobRow) protocol.Ref {
	return protocol.Ref{
		Folder: row.BeamsetPath,
		File:   row.BeamsetFile,
		Name:   row.ProtocolBeamset,
	}
}

// BuildDefinition combines the template's technique and name with the row's clinical parameters.
func BuildDefinition(row models.JobRow, name string, tmpl *models.BeamSetTemplate) (models.BeamSetDefinition, error) {
	if tmpl == nil || tmpl.Technique == "" {
		return models.BeamSetDefinition{}, fmt.Errorf("%s: %w", row.ProtocolBeamset, errNoTechnique)
	}
	if tmpl.Name == "" {
		return models.BeamSetDefinition{}, fmt.Errorf("%s: %w", row.ProtocolBeamset, errNoProtocolName)
	}
	rx, ok := row.PrescriptionTarget()
	if !ok {
		return models.BeamSetDefinition{}, errNoPrescriptionTarget
	}

	return models.BeamSetDefinition{
		Name:         name,
		DicomName:    name,
		RxTarget:     rx.Name,
		TotalDose:    rx.Dose,
		Fractions:    row.NumberFractions,
		Machine:      row.Machine,
		IsoTarget:    row.Isotarget,
		Modality:     models.ModalityPhotons,
		Technique:    tmpl.Technique,
		ProtocolName: tmpl.Name,
	}, nil
}
