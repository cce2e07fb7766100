package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osama-ammar/ray-scripts/internal/metrics"
	"github.com/osama-ammar/ray-scripts/internal/models"
	"github.com/osama-ammar/ray-scripts/internal/protocol"
	"github.com/osama-ammar/ray-scripts/internal/service"
)

const vmatProtocol = `<?xml version="1.0"?>
<protocol>
  <name>Head and Neck</name>
  <beamset>
    <name>HN_VMAT_2ARC</name>
    <technique>VMAT</technique>
    <beam>
      <BeamNumber>1</BeamNumber>
      <Name>A1</Name>
      <GantryAngle>181</GantryAngle>
      <GantryStopAngle>179</GantryStopAngle>
    </beam>
  </beamset>
</protocol>`

const structurePrefs = `planning_structure_config:
  - name: HN_Standard
    uniform_structures: [Brainstem, SpinalCord]
    uniform_standoff: 0.3
    ring_hd_name: Ring_HD
    ring_hd_ExpA: 1.5
  - name: Broken_Skin
    skin_name: Skin_PRV
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func protocolRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "protocols", "hn.xml"), vmatProtocol)
	writeFile(t, filepath.Join(root, "structs", "prefs.yaml"), structurePrefs)
	return root
}

func validRow() models.JobRow {
	return models.JobRow{
		Line:            2,
		PatientID:       "123",
		Case:            "Case 1",
		PlanName:        "Plan_HN",
		BeamsetName:     "VMAT_HN",
		BeamsetPath:     "protocols",
		BeamsetFile:     "hn.xml",
		ProtocolBeamset: "HN_VMAT_2ARC",
		Machine:         "TrueBeam1",
		Isotarget:       "PTV_70",
		NumberFractions: 35,
		NumberTargets:   1,
		Targets:         []models.TargetDose{{Name: "PTV_70", Dose: 7000}},
	}
}

func TestValidator_Check(t *testing.T) {
	root := protocolRoot(t)
	v := &validator{
		catalog: protocol.NewCatalog(root),
		presets: protocol.NewPresetSource(root),
	}
	ctx := context.Background()

	withWorkflow := func(name string) models.JobRow {
		row := validRow()
		row.PlanningStructurePath = "structs"
		row.PlanningStructureFile = "prefs.yaml"
		row.PlanningStructureWorkflow = name
		return row
	}

	tests := []struct {
		name string
		row  func() models.JobRow
		want []string
	}{
		{name: "valid row", row: validRow},
		{name: "valid row with workflow", row: func() models.JobRow { return withWorkflow("HN_Standard") }},
		{
			name: "parse error",
			row: func() models.JobRow {
				row := validRow()
				row.Err = assert.AnError
				return row
			},
			want: []string{assert.AnError.Error()},
		},
		{
			name: "missing template",
			row: func() models.JobRow {
				row := validRow()
				row.ProtocolBeamset = "HN_TOMO"
				return row
			},
			want: []string{"protocol beamset HN_TOMO not found (available: HN_VMAT_2ARC)"},
		},
		{
			name: "no prescription target",
			row: func() models.JobRow {
				row := validRow()
				row.Targets = nil
				return row
			},
			want: []string{"beamset definition: no prescription target (Target01/TargetDose01)"},
		},
		{
			name: "missing workflow",
			row:  func() models.JobRow { return withWorkflow("Prostate") },
			want: []string{"planning structure workflow Prostate not found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.check(ctx, tt.row()))
		})
	}

	t.Run("untranslatable workflow", func(t *testing.T) {
		problems := v.check(ctx, withWorkflow("Broken_Skin"))
		require.Len(t, problems, 1)
		assert.Contains(t, problems[0], "workflow Broken_Skin")
	})
}

func TestRunPresets(t *testing.T) {
	root := protocolRoot(t)
	prefs := filepath.Join(root, "structs", "prefs.yaml")

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		cmd := &cobra.Command{}
		cmd.SetOut(&out)
		cmd.SetContext(context.Background())
		err := runPresets(cmd, args)
		return out.String(), err
	}

	out, err := run(prefs)
	require.NoError(t, err)
	assert.Equal(t, "HN_Standard\nBroken_Skin\n", out)

	out, err = run(prefs, "HN_Standard")
	require.NoError(t, err)
	assert.Contains(t, out, `"workflow": "HN_Standard"`)
	assert.Contains(t, out, `"Brainstem"`)
	assert.Contains(t, out, `"ring_hd"`)

	_, err = run(prefs, "Prostate")
	assert.ErrorIs(t, err, protocol.ErrPresetNotFound)
}

func TestPlainObserver(t *testing.T) {
	var out bytes.Buffer
	obs := &plainObserver{w: &out}
	row := validRow()

	ok := models.NewRowOutcome(row)
	obs.RowFinished(context.Background(), 0, 2, row, ok)

	failed := models.NewRowOutcome(row)
	failed.Status = "Patient 123 not found"
	obs.RowFinished(context.Background(), 1, 2, row, failed)

	assert.Equal(t,
		"[1/2] line 2 123 Plan_HN/VMAT_HN: success\n"+
			"[2/2] line 2 123 Plan_HN/VMAT_HN: Patient 123 not found\n",
		out.String())
}

func TestProgressModel(t *testing.T) {
	stopped := false
	m := newProgressModel("ab12cd34", 7, func() { stopped = true })
	row := validRow()

	next, _ := m.Update(rowStartedMsg{index: 0, row: row})
	m = next.(progressModel)
	assert.Contains(t, m.renderContent(), "… line 2 123 Plan_HN")

	for i := range 7 {
		outcome := models.NewRowOutcome(row)
		if i%2 == 1 {
			outcome.Status = "Case Case 1 not found"
		}
		next, _ = m.Update(rowFinishedMsg{index: i, row: row, outcome: outcome})
		m = next.(progressModel)
	}
	assert.Equal(t, 7, m.done)
	assert.Equal(t, 3, m.failed)
	assert.Len(t, m.recent, recentRows)
	assert.Nil(t, m.current)
	assert.False(t, stopped)

	view := m.renderContent()
	assert.Contains(t, view, "ab12cd34 running")
	assert.Contains(t, view, "7/7 rows")
	assert.Contains(t, view, "3 failed")

	next, cmd := m.Update(batchDoneMsg{})
	m = next.(progressModel)
	assert.True(t, m.finished)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.renderContent(), "ab12cd34 done")
	assert.NotContains(t, m.renderContent(), "Ctrl+C")
}

func TestPrintSummary(t *testing.T) {
	collector := metrics.NewCollector()
	collector.RecordTiming(metrics.OpRow, 900*time.Millisecond)
	collector.RecordTiming(metrics.OpPlace, 600*time.Millisecond)
	collector.RecordTiming(metrics.OpLoad, 200*time.Millisecond)
	collector.RecordFailure(metrics.OpName, 10*time.Millisecond)

	started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	completed := started.Add(90 * time.Second)
	run := &service.Run{
		ID:          "ab12cd34",
		OutputPath:  "/data/batch_output.txt",
		Status:      service.RunStatusCompleted,
		StartedAt:   started,
		CompletedAt: &completed,
	}
	result := &service.BatchResult{Total: 3, Processed: 3, Succeeded: 2, Failed: 1}

	var out bytes.Buffer
	printSummary(&out, run, result, collector.Snapshot())

	s := out.String()
	assert.Contains(t, s, "Run ab12cd34 completed")
	assert.Contains(t, s, "Rows processed:  3/3")
	assert.Contains(t, s, "Failed:          1")
	assert.Contains(t, s, "/data/batch_output.txt")
	assert.Contains(t, s, "Duration:        1m30s")
	assert.Contains(t, s, "place")
	assert.Contains(t, s, "load")
	assert.NotContains(t, s, "row ")
}

func TestPrintOutcomes(t *testing.T) {
	row := validRow()
	failed := models.NewRowOutcome(row)
	failed.Status = "Dry run: would create VMAT beamset VMAT_HN with 2 beams"

	var out bytes.Buffer
	printOutcomes(&out, []models.RowOutcome{failed})
	assert.Contains(t, out.String(), "PATIENT")
	assert.Contains(t, out.String(), "Dry run: would create VMAT beamset VMAT_HN with 2 beams")

	out.Reset()
	printOutcomes(&out, nil)
	assert.Empty(t, out.String())
}
