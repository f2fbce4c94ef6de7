package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"training-orchestrator/core/models"
)

// Manifest is a JSON Lines run index. New runs are appended; status and artifact
// changes rewrite the file through a temp file and rename.
type Manifest struct {
	path string
	mu   sync.Mutex
}

// NewManifest returns a manifest stored at path. The file is created on first write.
func NewManifest(path string) *Manifest {
	return &Manifest{path: path}
}

// Path returns the manifest file location
func (m *Manifest) Path() string {
	return m.path
}

// CreateRun appends run to the manifest
func (m *Manifest) CreateRun(_ context.Context, run *models.Run) error {
	line, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode manifest entry: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}
	f, err := os.OpenFile(m.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening manifest %s: %w", m.path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append manifest entry: %w", err)
	}
	return nil
}

// UpdateRunStatus sets the status of run id
func (m *Manifest) UpdateRunStatus(_ context.Context, id string, status models.RunStatus) error {
	return m.update(id, func(run *models.Run) {
		run.Status = status
	})
}

// AddArtifact records an artifact produced by run id
func (m *Manifest) AddArtifact(_ context.Context, id string, artifact models.RunArtifact) error {
	return m.update(id, func(run *models.Run) {
		run.Artifacts = append(run.Artifacts, artifact)
	})
}

// GetRun returns run id
func (m *Manifest) GetRun(_ context.Context, id string) (*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs, err := m.read()
	if err != nil {
		return nil, err
	}
	for _, run := range runs {
		if run.ID == id {
			return run, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
}

// ListRuns returns up to limit runs, most recently submitted first. limit <= 0 means all.
func (m *Manifest) ListRuns(_ context.Context, limit int) ([]*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs, err := m.read()
	if err != nil {
		return nil, err
	}
	out := make([]*models.Run, 0, len(runs))
	for i := len(runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, runs[i])
	}
	return out, nil
}

// ListArtifacts returns the artifacts recorded for run id
func (m *Manifest) ListArtifacts(ctx context.Context, id string) ([]models.RunArtifact, error) {
	run, err := m.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	return run.Artifacts, nil
}

func (m *Manifest) update(id string, mutate func(*models.Run)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs, err := m.read()
	if err != nil {
		return err
	}
	changed := false
	for _, run := range runs {
		if run.ID == id {
			mutate(run)
			changed = true
		}
	}
	if !changed {
		return fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
	}
	return m.write(runs)
}

func (m *Manifest) read() ([]*models.Run, error) {
	f, err := os.Open(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening manifest %s: %w", m.path, err)
	}
	defer f.Close()

	var runs []*models.Run
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var run models.Run
		if err := json.Unmarshal(line, &run); err != nil {
			return nil, fmt.Errorf("decode manifest %s: %w", m.path, err)
		}
		runs = append(runs, &run)
	}
	return runs, scanner.Err()
}

func (m *Manifest) write(runs []*models.Run) error {
	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".manifest-*")
	if err != nil {
		return fmt.Errorf("create manifest temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, run := range runs {
		line, err := json.Marshal(run)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("encode manifest entry: %w", err)
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return os.Rename(tmp.Name(), m.path)
}
