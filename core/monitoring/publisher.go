package monitoring

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"training-orchestrator/core/models"

	"github.com/google/uuid"
)

// Publisher delivers job lifecycle events to the event bus
type Publisher interface {
	Publish(eventType models.BusEventType, payload map[string]interface{}) error
}

// FilePublisher appends bus events to a JSON Lines file
type FilePublisher struct {
	path   string
	source string
	now    func() time.Time
	mu     sync.Mutex
}

// NewFilePublisher creates the parent directory of path and returns a publisher for it
func NewFilePublisher(path, source string) (*FilePublisher, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create event bus directory: %w", err)
	}
	return &FilePublisher{path: path, source: source, now: time.Now}, nil
}

// Publish appends one event with a fresh evt-<uuid> id
func (p *FilePublisher) Publish(eventType models.BusEventType, payload map[string]interface{}) error {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	line, err := json.Marshal(models.BusEvent{
		ID:        "evt-" + uuid.NewString(),
		Source:    p.source,
		EventType: eventType,
		Timestamp: p.now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("encode bus event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := os.OpenFile(p.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event bus %s: %w", p.path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// NopPublisher drops every event
type NopPublisher struct{}

// Publish implements Publisher
func (NopPublisher) Publish(models.BusEventType, map[string]interface{}) error { return nil }
