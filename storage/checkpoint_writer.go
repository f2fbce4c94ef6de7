package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"training-orchestrator/core/models"
	"training-orchestrator/core/spec"
)

// CheckpointIDPrefix prefixes every checkpoint identifier
const CheckpointIDPrefix = "checkpoint-"

// CheckpointWriter writes run-completion metadata into the checkpoint directory.
//
// Identifiers are derived from whole Unix seconds, so two runs that finish within
// the same second against the same directory write to the same file and the later
// one wins.
type CheckpointWriter struct {
	now func() time.Time
}

// NewCheckpointWriter creates a writer; nil now means time.Now
func NewCheckpointWriter(now func() time.Time) *CheckpointWriter {
	if now == nil {
		now = time.Now
	}
	return &CheckpointWriter{now: now}
}

// CheckpointID returns the identifier for a checkpoint written at t
func CheckpointID(t time.Time) string {
	return CheckpointIDPrefix + strconv.FormatInt(t.Unix(), 10)
}

// Write builds the metadata for a finished run and persists it as <id>.meta.json
func (w *CheckpointWriter) Write(cfg *spec.TrainingConfig, devices []string) (string, models.CheckpointMetadata, error) {
	now := w.now()
	meta := models.CheckpointMetadata{
		ID:           CheckpointID(now),
		Model:        models.CheckpointModelTag,
		CreatedAt:    now.UTC().Format(models.CheckpointTimeLayout),
		TrainingStep: cfg.Steps,
		Devices:      append([]string{}, devices...),
		Notes:        cfg.Notes,
	}

	if err := os.MkdirAll(cfg.CheckpointDir, 0o755); err != nil {
		return "", meta, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	path := filepath.Join(cfg.CheckpointDir, meta.ID+".meta.json")

	file, err := os.Create(path)
	if err != nil {
		return "", meta, fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(meta); err != nil {
		file.Close()
		return "", meta, fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", meta, fmt.Errorf("failed to close checkpoint file: %w", err)
	}
	return path, meta, nil
}

// LoadCheckpointMetadata reads a metadata file written by CheckpointWriter
func LoadCheckpointMetadata(path string) (*models.CheckpointMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var meta models.CheckpointMetadata
	if err := json.NewDecoder(file).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", path, err)
	}
	if meta.ID == "" {
		return nil, fmt.Errorf("checkpoint %s has no id", path)
	}
	return &meta, nil
}
