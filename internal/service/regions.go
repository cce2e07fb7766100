package service

import (
	"context"
	"fmt"
	"math"

	"github.com/osama-ammar/ray-scripts/internal/models"
)

// PresetLoader resolves a planning-structure workflow preset.
type PresetLoader interface {
	Preset(ctx context.Context, folder, file, workflow string) (models.StructurePreset, error)
}

// Preset fields read during translation.
const (
	fieldFirstTargetNumber   = "first_target_number"
	fieldUniformStructures   = "uniform_structures"
	fieldUniformStandoff     = "uniform_standoff"
	fieldUnderdoseStructures = "underdose_structures"
	fieldUnderdoseStandoff   = "underdose_standoff"
	fieldInnerAirName        = "inner_air_name"
	fieldSuperficialTarget   = "superficial_target_name"
	fieldRingHDName          = "ring_hd_name"
	fieldRingHDExpansion     = "ring_hd_ExpA"
	fieldRingHDStandoff      = "ring_hd_standoff"
	fieldRingLDName          = "ring_ld_name"
	fieldRingLDExpansion     = "ring_ld_ExpA"
	fieldRingLDStandoff      = "ring_ld_standoff"
	fieldTargetRingName      = "ring_ts_name"
	fieldOTVName             = "otv_name"
	fieldOTVStandoff         = "otv_standoff"
	fieldSkinName            = "skin_name"
	fieldSkinExpansion       = "skin_ExpA"
)

// TranslatePreset turns a workflow preset into a region request for row.
// Optional sections are generated only when their name or structure list is present.
func TranslatePreset(row models.JobRow, preset models.StructurePreset) (models.RegionRequest, error) {
	req := models.RegionRequest{
		Workflow:            preset.Name(),
		NumberOfTargets:     row.NumberTargets,
		Targets:             row.Targets,
		GeneratePTVs:        true,
		GeneratePTVEvals:    true,
		GenerateFieldOfView: true,
		GenerateNormal2cm:   true,
		GenerateCombinedPTV: true,
	}

	first, ok, err := preset.Float(fieldFirstTargetNumber)
	if err != nil {
		return req, err
	}
	if ok {
		if first != math.Trunc(first) {
			return req, fmt.Errorf("preset field %s: not a whole number: %v", fieldFirstTargetNumber, first)
		}
		req.FirstTargetNumber = int(first)
	}

	if req.UniformDose, err = structureSet(preset, fieldUniformStructures, fieldUniformStandoff); err != nil {
		return req, err
	}
	if req.UnderDose, err = structureSet(preset, fieldUnderdoseStructures, fieldUnderdoseStandoff); err != nil {
		return req, err
	}

	req.InnerAir = preset.String(fieldInnerAirName) != ""
	req.TargetSkin = preset.String(fieldSuperficialTarget) != ""
	req.TargetRings = preset.String(fieldTargetRingName) != ""

	if req.RingHD, err = ring(preset, fieldRingHDName, fieldRingHDExpansion, fieldRingHDStandoff); err != nil {
		return req, err
	}
	if req.RingLD, err = ring(preset, fieldRingLDName, fieldRingLDExpansion, fieldRingLDStandoff); err != nil {
		return req, err
	}

	if preset.String(fieldOTVName) != "" {
		req.GenerateOTVs = true
		if req.OTVStandoff, err = optionalFloat(preset, fieldOTVStandoff); err != nil {
			return req, err
		}
	}

	if preset.String(fieldSkinName) != "" {
		contraction, err := requiredFloat(preset, fieldSkinExpansion, fieldSkinName)
		if err != nil {
			return req, err
		}
		req.GenerateSkin = true
		req.SkinContraction = &contraction
	}

	return req, nil
}

func structureSet(preset models.StructurePreset, structuresKey, standoffKey string) (*models.StructureSet, error) {
	structures := preset.Strings(structuresKey)
	if len(structures) == 0 {
		return nil, nil
	}
	standoff, err := optionalFloat(preset, standoffKey)
	if err != nil {
		return nil, err
	}
	return &models.StructureSet{Structures: structures, Standoff: standoff}, nil
}

func ring(preset models.StructurePreset, nameKey, expansionKey, standoffKey string) (*models.Ring, error) {
	if preset.String(nameKey) == "" {
		return nil, nil
	}
	thickness, err := requiredFloat(preset, expansionKey, nameKey)
	if err != nil {
		return nil, err
	}
	standoff, err := optionalFloat(preset, standoffKey)
	if err != nil {
		return nil, err
	}
	return &models.Ring{Thickness: thickness, Standoff: standoff}, nil
}

func optionalFloat(preset models.StructurePreset, key string) (*float64, error) {
	v, ok, err := preset.Float(key)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

func requiredFloat(preset models.StructurePreset, key, because string) (float64, error) {
	v, ok, err := preset.Float(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("preset field %s is required when %s is set", key, because)
	}
	return v, nil
}
