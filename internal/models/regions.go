package models

import (
	"fmt"
	"strconv"
	"strings"
)

// StructurePreset is one workflow row of a planning-structure preferences dataset.
// Values are kept as parsed (strings, numbers, or lists) and read through accessors.
type StructurePreset map[string]any

// Name returns the workflow name of the preset.
func (p StructurePreset) Name() string {
	return p.String("name")
}

// String returns the value as text, or "" when absent.
func (p StructurePreset) String(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []any:
		if len(v) == 0 {
			return ""
		}
		return fmt.Sprint(v[0])
	default:
		return fmt.Sprint(v)
	}
}

// Strings returns the value as a list of non-empty strings.
// A scalar value becomes a single-element list.
func (p StructurePreset) Strings(key string) []string {
	var out []string
	switch v := p[key].(type) {
	case nil:
	case []any:
		for _, item := range v {
			if item == nil {
				continue
			}
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range v {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	default:
		if s := p.String(key); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Float returns the first numeric value stored under key.
// Lists yield their first element. Absent or empty values return (0, false).
func (p StructurePreset) Float(key string) (float64, bool, error) {
	var raw any = p[key]
	if list, ok := raw.([]any); ok {
		if len(list) == 0 {
			return 0, false, nil
		}
		raw = list[0]
	}
	switch v := raw.(type) {
	case nil:
		return 0, false, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	case float64:
		return v, true, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("preset field %s: %w", key, err)
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("preset field %s: unexpected type %T", key, raw)
	}
}

// StructureSet is a list of structures plus the standoff applied around them.
type StructureSet struct {
	Structures []string `json:"structures"`
	Standoff   *float64 `json:"standoff,omitempty"`
}

// Ring describes a dose ring by thickness and standoff (cm).
type Ring struct {
	Thickness float64  `json:"thickness"`
	Standoff  *float64 `json:"standoff,omitempty"`
}

// RegionRequest is the input to the planning-region generator.
// A nil optional section means "do not generate".
type RegionRequest struct {
	Workflow          string       `json:"workflow"`
	NumberOfTargets   int          `json:"number_of_targets"`
	FirstTargetNumber int          `json:"first_target_number"`
	Targets           []TargetDose `json:"targets"`

	UniformDose *StructureSet `json:"uniform_dose,omitempty"`
	UnderDose   *StructureSet `json:"under_dose,omitempty"`
	InnerAir    bool          `json:"inner_air"`
	TargetSkin  bool          `json:"target_skin"`
	RingHD      *Ring         `json:"ring_hd,omitempty"`
	RingLD      *Ring         `json:"ring_ld,omitempty"`
	TargetRings bool          `json:"target_rings"`

	GenerateOTVs bool     `json:"generate_otvs"`
	OTVStandoff  *float64 `json:"otv_standoff,omitempty"`

	GenerateSkin    bool     `json:"generate_skin"`
	SkinContraction *float64 `json:"skin_contraction,omitempty"`

	GeneratePTVs        bool `json:"generate_ptvs"`
	GeneratePTVEvals    bool `json:"generate_ptv_evals"`
	GenerateFieldOfView bool `json:"generate_field_of_view"`
	GenerateNormal2cm   bool `json:"generate_normal_2cm"`
	GenerateCombinedPTV bool `json:"generate_combined_ptv"`
}
