package monitoring

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"training-orchestrator/core/models"
)

// EventLogger is the append-only JSON Lines sink of a training session.
// The file is opened once and every Emit writes and syncs exactly one record.
type EventLogger struct {
	path string
	file *os.File
	now  func() time.Time

	mu     sync.Mutex
	closed bool
}

// OpenEventLogger opens (creating if needed) path for appending. now supplies
// record timestamps; nil means time.Now.
func OpenEventLogger(path string, now func() time.Time) (*EventLogger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log %s: %w", path, err)
	}
	if now == nil {
		now = time.Now
	}
	return &EventLogger{path: path, file: f, now: now}, nil
}

// Path returns the file the logger appends to
func (l *EventLogger) Path() string {
	return l.path
}

// Emit appends one record and flushes it to disk before returning
func (l *EventLogger) Emit(event models.EventName, payload map[string]interface{}) error {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	line, err := json.Marshal(models.EventRecord{
		Event:     event,
		Timestamp: l.now().Format(models.EventTimeLayout),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("event log is closed")
	}
	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("write %s event: %w", event, err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync event log: %w", err)
	}
	return nil
}

// Close releases the file handle. Calling it more than once is a no-op.
func (l *EventLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

// ReadEvents parses an event log written by EventLogger
func ReadEvents(path string) ([]models.EventRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []models.EventRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec models.EventRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		events = append(events, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
