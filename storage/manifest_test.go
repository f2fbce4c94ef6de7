package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"training-orchestrator/core/models"
)

func newRun(id string, at time.Time) *models.Run {
	return &models.Run{
		ID:          id,
		SubmittedAt: at,
		Config:      "run.json",
		Profile:     "prod",
		Devices:     []string{"cpu:0"},
		LogPath:     "logs/" + id + ".log.jsonl",
		Status:      models.RunStatusQueued,
	}
}

func TestManifestLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewManifest(filepath.Join(t.TempDir(), "jobs", "index.jsonl"))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	runs, err := m.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	require.NoError(t, m.CreateRun(ctx, newRun("job-a", base)))
	require.NoError(t, m.CreateRun(ctx, newRun("job-b", base.Add(time.Minute))))
	require.NoError(t, m.CreateRun(ctx, newRun("job-c", base.Add(2*time.Minute))))

	require.NoError(t, m.UpdateRunStatus(ctx, "job-b", models.RunStatusRunning))
	require.NoError(t, m.UpdateRunStatus(ctx, "job-b", models.RunStatusCompleted))
	require.NoError(t, m.AddArtifact(ctx, "job-b", models.RunArtifact{
		Type: models.ArtifactTypeCheckpoint, URI: "/ckpt/checkpoint-1.meta.json", CreatedAt: base,
	}))

	run, err := m.GetRun(ctx, "job-b")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.True(t, run.SubmittedAt.Equal(base.Add(time.Minute)))

	artifacts, err := m.ListArtifacts(ctx, "job-b")
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "/ckpt/checkpoint-1.meta.json", artifacts[0].URI)

	runs, err = m.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "job-c", runs[0].ID)
	assert.Equal(t, "job-b", runs[1].ID)

	runs, err = m.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)

	other, err := m.GetRun(ctx, "job-a")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQueued, other.Status)
}

func TestManifestUnknownRun(t *testing.T) {
	ctx := context.Background()
	m := NewManifest(filepath.Join(t.TempDir(), "index.jsonl"))
	require.NoError(t, m.CreateRun(ctx, newRun("job-a", time.Now())))

	_, err := m.GetRun(ctx, "job-z")
	assert.ErrorIs(t, err, models.ErrRunNotFound)
	assert.ErrorIs(t, m.UpdateRunStatus(ctx, "job-z", models.RunStatusFailed), models.ErrRunNotFound)
}
