package models

// Techniques the placement stage dispatches on.
const (
	TechniqueTomoHelical = "TomoHelical"
	TechniqueVMAT        = "VMAT"
)

// ModalityPhotons is the only modality beamsets are created with.
const ModalityPhotons = "Photons"

// BeamSetDefinition is the row-scoped description of the beamset to create.
type BeamSetDefinition struct {
	Name         string  `json:"name"`
	DicomName    string  `json:"dicom_name"`
	RxTarget     string  `json:"rx_target"`
	TotalDose    float64 `json:"total_dose"`
	Fractions    int     `json:"number_of_fractions"`
	Machine      string  `json:"machine"`
	IsoTarget    string  `json:"iso_target"`
	Modality     string  `json:"modality"`
	Technique    string  `json:"technique"`
	ProtocolName string  `json:"protocol_name"`
}

// BeamSetTemplate is a named beamset read from a protocol file.
type BeamSetTemplate struct {
	Name        string `json:"name"`
	Technique   string `json:"technique"`
	Description string `json:"description,omitempty"`
	Beams       []Beam `json:"beams"`
}

// Beam is the geometry of a single beam in a protocol beamset.
type Beam struct {
	Number          int     `json:"number"`
	Name            string  `json:"name"`
	Description     string  `json:"description,omitempty"`
	Technique       string  `json:"technique,omitempty"`
	Energy          float64 `json:"energy"`
	GantryAngle     float64 `json:"gantry_angle"`
	GantryStopAngle float64 `json:"gantry_stop_angle,omitempty"`
	ArcDirection    string  `json:"arc_direction,omitempty"`
	CollimatorAngle float64 `json:"collimator_angle"`
	CouchAngle      float64 `json:"couch_angle"`
	FieldWidth      float64 `json:"field_width,omitempty"`
	Pitch           float64 `json:"pitch,omitempty"`
	JawMode         string  `json:"jaw_mode,omitempty"`
}

// Isocenter is a point in patient coordinates (cm).
type Isocenter struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}
