package monitoring

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"training-orchestrator/core/models"
)

func TestFilePublisherAppendsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus", "events.jsonl")
	pub, err := NewFilePublisher(path, "trn")
	require.NoError(t, err)
	pub.now = fixedClock

	require.NoError(t, pub.Publish(models.BusJobSubmitted, map[string]interface{}{"job_id": "job-1"}))
	require.NoError(t, pub.Publish(models.BusJobCompleted, nil))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []models.BusEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev models.BusEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, events, 2)

	assert.True(t, strings.HasPrefix(events[0].ID, "evt-"))
	assert.NotEqual(t, events[0].ID, events[1].ID)
	assert.Equal(t, "trn", events[0].Source)
	assert.Equal(t, models.BusJobSubmitted, events[0].EventType)
	assert.Equal(t, "2026-03-01T11:30:00Z", events[0].Timestamp)
	assert.Equal(t, "job-1", events[0].Payload["job_id"])
	assert.NotNil(t, events[1].Payload)
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(models.BusJobFailed, nil))
}
