package models

import "time"

// EventName identifies a record in the session event log
type EventName string

const (
	EventSessionStart    EventName = "session_start"
	EventStep            EventName = "step"
	EventCheckpoint      EventName = "checkpoint"
	EventSessionComplete EventName = "session_complete"
)

// EventTimeLayout is the timestamp layout of event log records
const EventTimeLayout = "2006-01-02T15:04:05-0700"

// EventRecord is one line of the session event log
type EventRecord struct {
	Event     EventName              `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}

// BusEventType identifies a job lifecycle event published on the event bus
type BusEventType string

const (
	BusJobSubmitted BusEventType = "training.job_submitted"
	BusJobCompleted BusEventType = "training.job_completed"
	BusJobFailed    BusEventType = "training.job_failed"
)

// BusEvent is a job lifecycle record published to the event bus file
type BusEvent struct {
	ID        string                 `json:"id"`
	Source    string                 `json:"source"`
	EventType BusEventType           `json:"event_type"`
	Timestamp string                 `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}

// ArtifactType represents the type of run artifact
type ArtifactType string

const (
	ArtifactTypeCheckpoint ArtifactType = "checkpoint"
	ArtifactTypeLog        ArtifactType = "log"
)

// RunArtifact represents a file produced by a run
type RunArtifact struct {
	Type      ArtifactType `json:"type"`
	URI       string       `json:"uri"`
	CreatedAt time.Time    `json:"created_at"`
}
