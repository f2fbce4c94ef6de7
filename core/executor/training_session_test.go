package executor

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"training-orchestrator/core/models"
	"training-orchestrator/core/monitoring"
	"training-orchestrator/core/spec"
	"training-orchestrator/storage"
)

func testConfig(t *testing.T, steps int) *spec.TrainingConfig {
	t.Helper()
	dir := t.TempDir()
	return &spec.TrainingConfig{
		DatasetIndex:  filepath.Join(dir, "index.json"),
		CheckpointDir: filepath.Join(dir, "checkpoints"),
		Steps:         steps,
		BatchSize:     4,
		LearningRate:  0.001,
		InputDim:      8,
		OutputDim:     4,
		HiddenDim:     16,
	}
}

func newSession(t *testing.T, cfg *spec.TrainingConfig, devices []string, opts ...Option) (*TrainingSession, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "logs", "nested", "run.jsonl")
	rc := NewRunnerContext(cfg, devices, "", "prod", logPath)
	base := []Option{
		WithStepDelay(0),
		WithCapabilities(Capabilities{}),
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
	}
	s, err := NewTrainingSession(rc, append(base, opts...)...)
	require.NoError(t, err)
	return s, logPath
}

func eventNames(records []models.EventRecord) []models.EventName {
	names := make([]models.EventName, 0, len(records))
	for _, r := range records {
		names = append(names, r.Event)
	}
	return names
}

func TestNewTrainingSessionCreatesLogDirectory(t *testing.T) {
	_, logPath := newSession(t, testConfig(t, 0), nil)

	info, err := os.Stat(filepath.Dir(logPath))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestRunSimulatedTwentySteps(t *testing.T) {
	cfg := testConfig(t, 20)
	s, logPath := newSession(t, cfg, nil)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, StateComplete, s.State())

	records, err := monitoring.ReadEvents(logPath)
	require.NoError(t, err)
	assert.Equal(t, []models.EventName{
		models.EventSessionStart,
		models.EventStep,
		models.EventStep,
		models.EventCheckpoint,
		models.EventSessionComplete,
	}, eventNames(records))

	start := records[0].Payload
	assert.Equal(t, "prod", start["profile"])
	assert.Equal(t, []interface{}{}, start["devices"])

	assert.Equal(t, float64(0), records[1].Payload["step"])
	assert.Equal(t, 1.0, records[1].Payload["loss"])
	assert.Equal(t, true, records[1].Payload["simulated"])
	assert.Equal(t, float64(10), records[2].Payload["step"])
	assert.InDelta(t, 0.904382, records[2].Payload["loss"], 1e-6)

	assert.Empty(t, records[4].Payload)

	matches, err := filepath.Glob(filepath.Join(cfg.CheckpointDir, "checkpoint-*.meta.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, filepath.Join(cfg.CheckpointDir, "checkpoint-1700000000.meta.json"), matches[0])
	assert.Equal(t, matches[0], s.CheckpointPath())
	assert.Equal(t, matches[0], records[3].Payload["meta"])

	meta, err := storage.LoadCheckpointMetadata(matches[0])
	require.NoError(t, err)
	assert.Equal(t, 20, meta.TrainingStep)
	assert.Equal(t, "checkpoint-1700000000", meta.ID)
	assert.Equal(t, "2023-11-14T22:13:20Z", meta.CreatedAt)
}

func TestRunZeroSteps(t *testing.T) {
	cfg := testConfig(t, 0)
	s, logPath := newSession(t, cfg, []string{"cpu"})

	require.NoError(t, s.Run(context.Background()))

	records, err := monitoring.ReadEvents(logPath)
	require.NoError(t, err)
	assert.Equal(t, []models.EventName{
		models.EventSessionStart,
		models.EventCheckpoint,
		models.EventSessionComplete,
	}, eventNames(records))

	meta, err := storage.LoadCheckpointMetadata(s.CheckpointPath())
	require.NoError(t, err)
	assert.Equal(t, 0, meta.TrainingStep)
	assert.Equal(t, []string{"cpu"}, meta.Devices)
}

func TestRunStepEventsOnlyAtMultiplesOfTen(t *testing.T) {
	s, logPath := newSession(t, testConfig(t, 35), nil)
	require.NoError(t, s.Run(context.Background()))

	records, err := monitoring.ReadEvents(logPath)
	require.NoError(t, err)

	var steps []float64
	counts := map[models.EventName]int{}
	for _, r := range records {
		counts[r.Event]++
		if r.Event == models.EventStep {
			steps = append(steps, r.Payload["step"].(float64))
		}
	}
	assert.Equal(t, []float64{0, 10, 20, 30}, steps)
	assert.Equal(t, 1, counts[models.EventSessionStart])
	assert.Equal(t, 1, counts[models.EventCheckpoint])
	assert.Equal(t, 1, counts[models.EventSessionComplete])
	assert.Equal(t, models.EventSessionComplete, records[len(records)-1].Event)
}

func TestRunTwiceFails(t *testing.T) {
	s, logPath := newSession(t, testConfig(t, 1), nil)
	require.NoError(t, s.Run(context.Background()))
	assert.ErrorIs(t, s.Run(context.Background()), ErrSessionAlreadyRun)

	records, err := monitoring.ReadEvents(logPath)
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func TestRunAppendsToExistingLog(t *testing.T) {
	cfg := testConfig(t, 0)
	logPath := filepath.Join(t.TempDir(), "run.jsonl")
	require.NoError(t, os.WriteFile(logPath, []byte(`{"event":"session_start","timestamp":"x","payload":{}}`+"\n"), 0o644))

	s, err := NewTrainingSession(NewRunnerContext(cfg, nil, "", "dev", logPath),
		WithStepDelay(0), WithCapabilities(Capabilities{}))
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	records, err := monitoring.ReadEvents(logPath)
	require.NoError(t, err)
	assert.Len(t, records, 4)
	assert.Equal(t, "dev", records[1].Payload["profile"])
}

func TestRunRealBackend(t *testing.T) {
	cfg := testConfig(t, 20)
	s, logPath := newSession(t, cfg, []string{"cuda:1"}, WithCapabilities(Capabilities{RealCompute: true}))

	require.NoError(t, s.Run(context.Background()))

	records, err := monitoring.ReadEvents(logPath)
	require.NoError(t, err)
	require.Len(t, records, 5)
	for _, r := range records[1:3] {
		require.Equal(t, models.EventStep, r.Event)
		_, simulated := r.Payload["simulated"]
		assert.False(t, simulated)
		loss := r.Payload["loss"].(float64)
		assert.False(t, math.IsNaN(loss))
		assert.Greater(t, loss, 0.0)
	}

	meta, err := storage.LoadCheckpointMetadata(s.CheckpointPath())
	require.NoError(t, err)
	assert.Equal(t, []string{"cuda:1"}, meta.Devices)
}

type failingBackend struct {
	failAt int
}

func (b *failingBackend) Name() string { return "failing" }

func (b *failingBackend) Step(_ context.Context, step int) (StepResult, error) {
	if step == b.failAt {
		return StepResult{}, errors.New("device lost")
	}
	return StepResult{Loss: 0.5}, nil
}

func (b *failingBackend) Close() error { return nil }

func TestRunBackendFailureLeavesIncompleteLog(t *testing.T) {
	cfg := testConfig(t, 30)
	s, logPath := newSession(t, cfg, nil, WithBackend(&failingBackend{failAt: 15}))

	err := s.Run(context.Background())
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "failing", backendErr.Backend)
	assert.Equal(t, StateExecuting, s.State())
	assert.Empty(t, s.CheckpointPath())

	records, err := monitoring.ReadEvents(logPath)
	require.NoError(t, err)
	assert.Equal(t, []models.EventName{
		models.EventSessionStart,
		models.EventStep,
		models.EventStep,
	}, eventNames(records))

	_, err = os.Stat(cfg.CheckpointDir)
	assert.True(t, os.IsNotExist(err))
}

func TestRunCheckpointFailure(t *testing.T) {
	cfg := testConfig(t, 0)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	cfg.CheckpointDir = filepath.Join(blocker, "checkpoints")

	s, logPath := newSession(t, cfg, nil)
	err := s.Run(context.Background())
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)

	records, err := monitoring.ReadEvents(logPath)
	require.NoError(t, err)
	assert.Equal(t, []models.EventName{models.EventSessionStart}, eventNames(records))
}

func TestRunHonorsCancellation(t *testing.T) {
	s, logPath := newSession(t, testConfig(t, 100), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Run(ctx), context.Canceled)

	records, err := monitoring.ReadEvents(logPath)
	require.NoError(t, err)
	assert.Equal(t, []models.EventName{models.EventSessionStart}, eventNames(records))
}
