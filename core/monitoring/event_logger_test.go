package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"training-orchestrator/core/models"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 30, 0, 0, time.FixedZone("CET", 3600))
}

func TestEventLoggerAppendsOneLinePerRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.log.jsonl")
	logger, err := OpenEventLogger(path, fixedClock)
	require.NoError(t, err)

	require.NoError(t, logger.Emit(models.EventSessionStart, map[string]interface{}{"profile": "prod"}))
	require.NoError(t, logger.Emit(models.EventSessionComplete, nil))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "session_start", rec["event"])
	assert.Equal(t, "2026-03-01T12:30:00+0100", rec["timestamp"])
	assert.Equal(t, map[string]interface{}{"profile": "prod"}, rec["payload"])

	assert.JSONEq(t, `{"event":"session_complete","timestamp":"2026-03-01T12:30:00+0100","payload":{}}`, lines[1])
}

func TestEventLoggerNeverRewritesPriorRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.log.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"event":"earlier","timestamp":"x","payload":{}}`+"\n"), 0o644))

	logger, err := OpenEventLogger(path, fixedClock)
	require.NoError(t, err)
	require.NoError(t, logger.Emit(models.EventStep, map[string]interface{}{"step": 0}))
	require.NoError(t, logger.Close())

	events, err := ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventName("earlier"), events[0].Event)
	assert.Equal(t, models.EventStep, events[1].Event)
	assert.Equal(t, float64(0), events[1].Payload["step"])
}

func TestEventLoggerEmitAfterClose(t *testing.T) {
	logger, err := OpenEventLogger(filepath.Join(t.TempDir(), "log.jsonl"), nil)
	require.NoError(t, err)
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	assert.Error(t, logger.Emit(models.EventStep, nil))
}

func TestOpenEventLoggerMissingDirectory(t *testing.T) {
	_, err := OpenEventLogger(filepath.Join(t.TempDir(), "missing", "log.jsonl"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadEventsRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{not json}\n"), 0o644))

	_, err := ReadEvents(path)
	assert.ErrorContains(t, err, ":1:")
}
