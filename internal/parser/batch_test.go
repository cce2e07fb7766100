package parser

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/osama-ammar/ray-scripts/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseHeader = "PatientID,FirstName,LastName,Case,ExaminationName,PlanName,BeamsetName," +
	"BeamsetPath,BeamsetFile,ProtocolBeamset,NumberFractions,Machine,Isotarget,NumberTargets"

const baseValues = "123456,Jane,Doe,Case 1,CT 1,Plan_HN,VMAT_HN," +
	"protocols/UW,UWHeadNeck.xml,2 Arc VMAT,30,TrueBeam,PTV_60,3"

func TestReadBatch_TargetExtraction(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		values  string
		want    []models.TargetDose
		wantErr bool
	}{
		{
			name:   "three populated pairs then absent fourth",
			header: ",Target01,TargetDose01,Target02,TargetDose02,Target03,TargetDose03",
			values: ",PTV_60,6000,PTV_54,5400,PTV_50,5000",
			want: []models.TargetDose{
				{Name: "PTV_60", Dose: 6000},
				{Name: "PTV_54", Dose: 5400},
				{Name: "PTV_50", Dose: 5000},
			},
		},
		{
			name:   "NaN dose excluded",
			header: ",Target01,TargetDose01,Target02,TargetDose02,Target03,TargetDose03",
			values: ",PTV_60,6000,PTV_54,NaN,PTV_50,5000",
			want: []models.TargetDose{
				{Name: "PTV_60", Dose: 6000},
				{Name: "PTV_50", Dose: 5000},
			},
		},
		{
			name:   "empty trailing pair excluded",
			header: ",Target01,TargetDose01,Target02,TargetDose02",
			values: ",PTV_60,6000,,",
			want:   []models.TargetDose{{Name: "PTV_60", Dose: 6000}},
		},
		{
			name:   "duplicate target keeps first position with later dose",
			header: ",Target01,TargetDose01,Target02,TargetDose02",
			values: ",PTV_60,6000,PTV_60,6600",
			want:   []models.TargetDose{{Name: "PTV_60", Dose: 6600}},
		},
		{
			name:    "unparseable dose is a row error",
			header:  ",Target01,TargetDose01",
			values:  ",PTV_60,sixty",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := baseHeader + tt.header + "\n" + baseValues + tt.values + "\n"
			batch, err := ReadBatch(strings.NewReader(input))
			require.NoError(t, err)
			require.Len(t, batch.Rows, 1)

			row := batch.Rows[0]
			if tt.wantErr {
				assert.Error(t, row.Err)
				return
			}
			require.NoError(t, row.Err)
			assert.Equal(t, tt.want, row.Targets)
		})
	}
}

func TestReadBatch_HeaderErrors(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"target column without number", baseHeader + ",Target00,TargetDose00"},
		{"missing required column", strings.Replace(baseHeader, ",Isotarget", "", 1)},
		{"duplicate column", baseHeader + ",Machine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadBatch(strings.NewReader(tt.header + "\n"))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidHeader), "got %v", err)
		})
	}
}

func TestReadBatch_TargetColumnGap(t *testing.T) {
	tests := []struct {
		name        string
		columns     string
		values      string
		wantPairs   int
		wantTargets []models.TargetDose
	}{
		{
			name:        "gap in target numbering",
			columns:     ",Target01,TargetDose01,Target02,TargetDose02,Target04,TargetDose04",
			values:      ",PTV_70,7000,PTV_60,6000,PTV_50,5000",
			wantPairs:   2,
			wantTargets: []models.TargetDose{{Name: "PTV_70", Dose: 7000}, {Name: "PTV_60", Dose: 6000}},
		},
		{
			name:        "target without dose column",
			columns:     ",Target01,TargetDose01,Target02",
			values:      ",PTV_70,7000,PTV_60",
			wantPairs:   1,
			wantTargets: []models.TargetDose{{Name: "PTV_70", Dose: 7000}},
		},
		{
			name:        "dose without target column",
			columns:     ",Target01,TargetDose01,TargetDose02",
			values:      ",PTV_70,7000,6000",
			wantPairs:   1,
			wantTargets: []models.TargetDose{{Name: "PTV_70", Dose: 7000}},
		},
		{
			name:      "numbering starts above one",
			columns:   ",Target02,TargetDose02",
			values:    ",PTV_60,6000",
			wantPairs: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := baseHeader + tt.columns + "\n" + baseValues + tt.values + "\n"

			batch, err := ReadBatch(strings.NewReader(input))
			require.NoError(t, err)
			assert.Equal(t, tt.wantPairs, batch.TargetPairs)
			require.Len(t, batch.Rows, 1)
			require.NoError(t, batch.Rows[0].Err)
			assert.Equal(t, tt.wantTargets, batch.Rows[0].Targets)
		})
	}
}

func TestReadBatch_EmptyFile(t *testing.T) {
	_, err := ReadBatch(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestReadBatch_RowFields(t *testing.T) {
	input := baseHeader + ",Target01,TargetDose01,PlanningStructureWorkflow,PlanningStructurePath,PlanningStructureFile\n" +
		baseValues + ",PTV_60,6000,HN_3Target,protocols/Structures,planning_structs.xml\n" +
		",,,,,,,,,,,,,,,,,,\n" +
		baseValues + ",PTV_60,6000,HN_3Target,,\n"

	batch, err := ReadBatch(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, batch.TargetPairs)
	require.Len(t, batch.Rows, 2, "blank line should be skipped")

	row := batch.Rows[0]
	require.NoError(t, row.Err)
	assert.Equal(t, 2, row.Line)
	assert.Equal(t, "123456", row.PatientID)
	assert.Equal(t, "Jane", row.FirstName)
	assert.Equal(t, "Doe", row.LastName)
	assert.Equal(t, "Case 1", row.Case)
	assert.Equal(t, "CT 1", row.ExaminationName)
	assert.Equal(t, "Plan_HN", row.PlanName)
	assert.Equal(t, "VMAT_HN", row.BeamsetName)
	assert.Equal(t, "protocols/UW", row.BeamsetPath)
	assert.Equal(t, "UWHeadNeck.xml", row.BeamsetFile)
	assert.Equal(t, "2 Arc VMAT", row.ProtocolBeamset)
	assert.Equal(t, 30, row.NumberFractions)
	assert.Equal(t, "TrueBeam", row.Machine)
	assert.Equal(t, "PTV_60", row.Isotarget)
	assert.Equal(t, 3, row.NumberTargets)
	assert.Equal(t, "HN_3Target", row.PlanningStructureWorkflow)
	assert.True(t, row.HasWorkflow())

	// Workflow without its preferences file is a row error, not a file error
	assert.Equal(t, 4, batch.Rows[1].Line)
	assert.Error(t, batch.Rows[1].Err)
}

func TestReadBatch_FractionsAsFloat(t *testing.T) {
	input := baseHeader + "\n" + strings.Replace(baseValues, ",30,", ",30.0,", 1) + "\n"
	batch, err := ReadBatch(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, batch.Rows, 1)
	require.NoError(t, batch.Rows[0].Err)
	assert.Equal(t, 30, batch.Rows[0].NumberFractions)

	input = baseHeader + "\n" + strings.Replace(baseValues, ",30,", ",30.5,", 1) + "\n"
	batch, err = ReadBatch(strings.NewReader(input))
	require.NoError(t, err)
	assert.Error(t, batch.Rows[0].Err)
}

func TestReadBatchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.csv")
	require.NoError(t, os.WriteFile(path, []byte("\ufeff"+baseHeader+"\n"+baseValues+"\n"), 0o644))

	batch, err := ReadBatchFile(path)
	require.NoError(t, err)
	require.Len(t, batch.Rows, 1)
	assert.Equal(t, "123456", batch.Rows[0].PatientID)

	_, err = ReadBatchFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
