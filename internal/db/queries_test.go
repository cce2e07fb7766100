package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osama-ammar/ray-scripts/internal/models"
)

func TestRunLifecycle(t *testing.T) {
	c := requireDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, c.CreateRun(ctx, "run00001", "/data/batch.csv", "/data/batch_output.txt", 3, false))
	require.NoError(t, c.UpdateRunProgress(ctx, "run00001", 1, 1, 0))

	run, err := c.GetRun(ctx, "run00001")
	require.NoError(t, err)
	assert.Equal(t, "running", run.Status)
	assert.Equal(t, "/data/batch.csv", run.InputPath)
	assert.Equal(t, 3, run.Total)
	assert.Equal(t, 1, run.Progress)
	assert.Nil(t, run.CompletedAt)

	require.NoError(t, c.CompleteRun(ctx, "run00001", 2, 1))
	run, err = c.GetRun(ctx, "run00001")
	require.NoError(t, err)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 3, run.Progress)
	assert.Equal(t, 2, run.Succeeded)
	assert.Equal(t, 1, run.Failed)
	assert.NotNil(t, run.CompletedAt)

	id, err := models.RecordIDString(run.ID)
	require.NoError(t, err)
	assert.Equal(t, "run00001", id)
}

func TestFailRun(t *testing.T) {
	c := requireDB(t)
	ctx := context.Background()

	require.NoError(t, c.CreateRun(ctx, "run00002", "b.csv", "b_output.txt", 1, true))
	require.NoError(t, c.FailRun(ctx, "run00002", "batch aborted: isocenter target not found"))

	run, err := c.GetRun(ctx, "run00002")
	require.NoError(t, err)
	assert.Equal(t, "failed", run.Status)
	assert.True(t, run.DryRun)
	require.NotNil(t, run.Error)
	assert.Equal(t, "batch aborted: isocenter target not found", *run.Error)
}

func TestCreateRunTwice(t *testing.T) {
	c := requireDB(t)
	ctx := context.Background()

	require.NoError(t, c.CreateRun(ctx, "run00003", "c.csv", "c_output.txt", 1, false))
	err := c.CreateRun(ctx, "run00003", "c.csv", "c_output.txt", 1, false)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGetRunNotFound(t *testing.T) {
	c := requireDB(t)

	_, err := c.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOutcomesAndListing(t *testing.T) {
	c := requireDB(t)
	ctx := context.Background()

	require.NoError(t, c.CreateRun(ctx, "run00004", "d.csv", "d_output.txt", 2, false))
	require.NoError(t, c.RecordOutcome(ctx, "run00004", 3, models.RowOutcome{
		PatientID: "999", Case: "Case 1", Plan: "Plan_HN", Beamset: "VMAT_HN",
		Status: "Patient Jane Doe, ID: 999 not found",
	}))
	require.NoError(t, c.RecordOutcome(ctx, "run00004", 2, models.RowOutcome{
		PatientID: "123", Case: "Case 1", Plan: "Plan_HN", Beamset: "VMAT_HN",
		PatientLoaded: true, BeamsLoaded: true,
	}))

	outcomes, err := c.ListOutcomes(ctx, "run00004")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, 2, outcomes[0].Line)
	assert.True(t, outcomes[0].Outcome.BeamsLoaded)
	assert.Equal(t, "success", outcomes[0].Outcome.StatusOrDefault())
	assert.Equal(t, "Patient Jane Doe, ID: 999 not found", outcomes[1].Outcome.Status)

	require.NoError(t, c.CreateRun(ctx, "run00005", "e.csv", "e_output.txt", 1, false))
	runs, err := c.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	newest, err := models.RecordIDString(runs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "run00005", newest)

	deleted, err := c.DeleteRun(ctx, "run00004")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	outcomes, err = c.ListOutcomes(ctx, "run00004")
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}
