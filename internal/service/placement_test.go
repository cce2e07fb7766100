package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osama-ammar/ray-scripts/internal/models"
	"github.com/osama-ammar/ray-scripts/internal/planning/planningtest"
)

type placementFixture struct {
	fake    *planningtest.Fake
	plan    *planningtest.Plan
	pc      models.PatientContext
	beamSet models.Handle
}

func newPlacementFixture(t *testing.T, technique string) placementFixture {
	t.Helper()
	f := planningtest.New()
	p := f.AddPatient("123", "Jane", "Doe")
	pl := p.AddCase("Case 1", "CT 1").AddPlan("Plan_HN")
	f.Structures["PTV_70"] = models.Isocenter{X: 1, Y: 2, Z: 3}

	pc := NewResolver(f, f, true).Resolve(context.Background(), testQuery())
	require.False(t, pc.Failed(), "errors: %v", pc.Errors)
	bs, err := f.CreateBeamSet(context.Background(), pc, models.BeamSetDefinition{Name: "BS", Technique: technique})
	require.NoError(t, err)

	return placementFixture{fake: f, plan: pl, pc: pc, beamSet: bs}
}

func placementDef(technique string) models.BeamSetDefinition {
	return models.BeamSetDefinition{Name: "BS", IsoTarget: "PTV_70", Technique: technique, ProtocolName: "HN"}
}

func twoArcs() []models.Beam {
	return []models.Beam{
		{Number: 1, Name: "1", GantryAngle: 181, GantryStopAngle: 179, ArcDirection: "Clockwise"},
		{Number: 2, Name: "2", GantryAngle: 179, GantryStopAngle: 181, ArcDirection: "CounterClockwise"},
	}
}

func TestPlacement_VMAT(t *testing.T) {
	fx := newPlacementFixture(t, models.TechniqueVMAT)

	res, err := NewPlacement(fx.fake, fx.fake).Place(context.Background(), fx.pc, fx.beamSet, placementDef(models.TechniqueVMAT), twoArcs())

	require.NoError(t, err)
	assert.True(t, res.BeamsLoaded)
	assert.Empty(t, res.Status)
	bs := fx.plan.FindBeamSet("BS")
	require.NotNil(t, bs)
	assert.Len(t, bs.Beams, 2)
	assert.Equal(t, &models.Isocenter{X: 1, Y: 2, Z: 3}, bs.Iso)
}

func TestPlacement_Tomo(t *testing.T) {
	fx := newPlacementFixture(t, models.TechniqueTomoHelical)
	beams := []models.Beam{{Number: 1, Name: "Tomo", FieldWidth: 2.5, Pitch: 0.43}}

	res, err := NewPlacement(fx.fake, fx.fake).Place(context.Background(), fx.pc, fx.beamSet, placementDef(models.TechniqueTomoHelical), beams)

	require.NoError(t, err)
	assert.True(t, res.BeamsLoaded)
	bs := fx.plan.FindBeamSet("BS")
	require.NotNil(t, bs.TomoBeam)
	assert.Equal(t, "Tomo", bs.TomoBeam.Name)
}

func TestPlacement_StatusResults(t *testing.T) {
	tests := []struct {
		name      string
		technique string
		beams     []models.Beam
		want      string
	}{
		{
			name:      "tomo with two beams",
			technique: models.TechniqueTomoHelical,
			beams:     twoArcs(),
			want:      "Invalid tomo beamset BS, expected one beam, found 2",
		},
		{
			name:      "vmat without beams",
			technique: models.TechniqueVMAT,
			want:      "No beams found in protocol beamset HN",
		},
		{
			name:      "unsupported technique",
			technique: "SMLC",
			beams:     twoArcs(),
			want:      "Unsupported beamset technique SMLC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newPlacementFixture(t, tt.technique)

			res, err := NewPlacement(fx.fake, fx.fake).Place(context.Background(), fx.pc, fx.beamSet, placementDef(tt.technique), tt.beams)

			require.NoError(t, err)
			assert.False(t, res.BeamsLoaded)
			assert.Equal(t, tt.want, res.Status)
			bs := fx.plan.FindBeamSet("BS")
			assert.Empty(t, bs.Beams)
			assert.Nil(t, bs.TomoBeam)
		})
	}
}

func TestPlacement_MissingIsocenterIsFatal(t *testing.T) {
	fx := newPlacementFixture(t, models.TechniqueVMAT)
	def := placementDef(models.TechniqueVMAT)
	def.IsoTarget = "PTV_missing"

	_, err := NewPlacement(fx.fake, fx.fake).Place(context.Background(), fx.pc, fx.beamSet, def, twoArcs())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBatchFatal)
	assert.ErrorIs(t, err, ErrIsocenterNotFound)
	assert.Contains(t, err.Error(), "could not locate center of PTV_missing")
	assert.NotContains(t, fx.fake.Calls, "PlaceBeams 2")
}

func TestPlacement_IsocenterCallCutShortIsNotFatal(t *testing.T) {
	for _, cause := range []error{context.Canceled, context.DeadlineExceeded} {
		t.Run(cause.Error(), func(t *testing.T) {
			fx := newPlacementFixture(t, models.TechniqueVMAT)
			fx.fake.IsocenterFn = func(string) (models.Isocenter, error) {
				return models.Isocenter{}, fmt.Errorf("isocenter: %w", cause)
			}

			_, err := NewPlacement(fx.fake, fx.fake).Place(context.Background(), fx.pc, fx.beamSet, placementDef(models.TechniqueVMAT), twoArcs())

			require.Error(t, err)
			assert.ErrorIs(t, err, cause)
			assert.False(t, errors.Is(err, ErrBatchFatal))
			assert.False(t, errors.Is(err, ErrIsocenterNotFound))
		})
	}
}

func TestPlacement_InsertionErrorIsNotFatal(t *testing.T) {
	fx := newPlacementFixture(t, models.TechniqueVMAT)
	unknown := models.Handle{Kind: models.KindBeamSet, ID: "missing", Name: "BS"}

	_, err := NewPlacement(fx.fake, fx.fake).Place(context.Background(), fx.pc, unknown, placementDef(models.TechniqueVMAT), twoArcs())

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrBatchFatal))
}
