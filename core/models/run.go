package models

import "time"

// Run is a training run recorded in the run registry
type Run struct {
	ID          string        `json:"job_id"`
	SubmittedAt time.Time     `json:"submitted_at"`
	Config      string        `json:"config"`
	Weights     *string       `json:"weights"`
	Profile     string        `json:"profile"`
	Devices     []string      `json:"devices"`
	LogPath     string        `json:"log_path"`
	Status      RunStatus     `json:"status"`
	Artifacts   []RunArtifact `json:"artifacts,omitempty"`
}

// RunStatus represents the current status of a run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status is final
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}
