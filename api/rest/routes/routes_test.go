package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"training-orchestrator/core/models"
	"training-orchestrator/core/monitoring"
	"training-orchestrator/storage"
)

func newTestServer(t *testing.T) (*httptest.Server, *storage.Manifest, string) {
	t.Helper()
	dir := t.TempDir()
	manifest := storage.NewManifest(filepath.Join(dir, "manifest.jsonl"))

	r := mux.NewRouter()
	SetupRoutes(r, manifest, nil)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, manifest, dir
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", nil))
}

func TestRunEndpoints(t *testing.T) {
	srv, manifest, dir := newTestServer(t)
	ctx := context.Background()

	logPath := filepath.Join(dir, "run.log.jsonl")
	events, err := monitoring.OpenEventLogger(logPath, nil)
	require.NoError(t, err)
	require.NoError(t, events.Emit(models.EventSessionStart, map[string]interface{}{"profile": "prod"}))
	require.NoError(t, events.Close())

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"job-a", "job-b"} {
		require.NoError(t, manifest.CreateRun(ctx, &models.Run{
			ID:          id,
			SubmittedAt: base.Add(time.Duration(i) * time.Minute),
			Config:      "run.json",
			Profile:     "prod",
			Devices:     []string{"cpu:0"},
			LogPath:     logPath,
			Status:      models.RunStatusQueued,
		}))
	}
	require.NoError(t, manifest.AddArtifact(ctx, "job-a", models.RunArtifact{
		Type: models.ArtifactTypeCheckpoint, URI: "/ckpt/checkpoint-1.meta.json", CreatedAt: base,
	}))

	var list struct {
		Runs  []models.Run `json:"runs"`
		Count int          `json:"count"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/runs", &list))
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "job-b", list.Runs[0].ID)

	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/runs?limit=1", &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/v1/runs?limit=x", nil))

	var run models.Run
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/runs/job-a", &run))
	assert.Equal(t, models.RunStatusQueued, run.Status)

	var ev struct {
		Events []models.EventRecord `json:"events"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/runs/job-a/events", &ev))
	require.Len(t, ev.Events, 1)
	assert.Equal(t, models.EventSessionStart, ev.Events[0].Event)

	var arts struct {
		Artifacts []models.RunArtifact `json:"artifacts"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/runs/job-a/artifacts", &arts))
	require.Len(t, arts.Artifacts, 1)
	assert.Equal(t, models.ArtifactTypeCheckpoint, arts.Artifacts[0].Type)
}

func TestRunEventsMissingLog(t *testing.T) {
	srv, manifest, dir := newTestServer(t)
	require.NoError(t, manifest.CreateRun(context.Background(), &models.Run{
		ID: "job-q", SubmittedAt: time.Now(), LogPath: filepath.Join(dir, "never-written.jsonl"),
		Status: models.RunStatusQueued,
	}))
	_, err := os.Stat(filepath.Join(dir, "never-written.jsonl"))
	require.True(t, os.IsNotExist(err))

	var ev struct {
		Events []models.EventRecord `json:"events"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/runs/job-q/events", &ev))
	assert.Empty(t, ev.Events)
}

func TestUnknownRun(t *testing.T) {
	srv, _, _ := newTestServer(t)
	for _, path := range []string{"/v1/runs/job-x", "/v1/runs/job-x/events", "/v1/runs/job-x/artifacts"} {
		assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+path, nil), path)
	}
}
