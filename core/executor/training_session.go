package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"training-orchestrator/core/models"
	"training-orchestrator/core/monitoring"
	"training-orchestrator/storage"
)

// StepEventInterval is the step spacing of step events
const StepEventInterval = 10

// SessionState is the lifecycle position of a TrainingSession
type SessionState string

const (
	StateStart             SessionState = "start"
	StateExecuting         SessionState = "executing"
	StateCheckpointWritten SessionState = "checkpoint_written"
	StateComplete          SessionState = "complete"
)

// TrainingSession drives one training run from a RunnerContext to a
// checkpoint and a complete event log. A session runs at most once.
type TrainingSession struct {
	rc         RunnerContext
	logger     *slog.Logger
	now        func() time.Time
	stepDelay  time.Duration
	caps       *Capabilities
	backend    Backend
	metrics    *monitoring.SessionMetrics
	checkpoint *storage.CheckpointWriter

	mu             sync.Mutex
	state          SessionState
	ran            bool
	checkpointPath string
}

// Option configures a TrainingSession
type Option func(*TrainingSession)

// WithLogger sets the diagnostic logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *TrainingSession) { s.logger = logger }
}

// WithClock sets the clock used for event and checkpoint timestamps
func WithClock(now func() time.Time) Option {
	return func(s *TrainingSession) { s.now = now }
}

// WithStepDelay overrides the simulated backend's per-step delay
func WithStepDelay(d time.Duration) Option {
	return func(s *TrainingSession) { s.stepDelay = d }
}

// WithCapabilities skips DetectCapabilities and uses caps instead
func WithCapabilities(caps Capabilities) Option {
	return func(s *TrainingSession) { s.caps = &caps }
}

// WithBackend bypasses backend selection
func WithBackend(b Backend) Option {
	return func(s *TrainingSession) { s.backend = b }
}

// WithMetrics records step and outcome metrics
func WithMetrics(m *monitoring.SessionMetrics) Option {
	return func(s *TrainingSession) { s.metrics = m }
}

// NewTrainingSession creates a session and makes sure the event log's
// parent directory exists.
func NewTrainingSession(rc RunnerContext, opts ...Option) (*TrainingSession, error) {
	s := &TrainingSession{
		rc:        rc,
		logger:    slog.Default(),
		now:       time.Now,
		stepDelay: DefaultStepDelay,
		state:     StateStart,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.checkpoint = storage.NewCheckpointWriter(s.now)

	if dir := filepath.Dir(rc.LogFile()); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &IOError{Op: "create log directory", Path: dir, Err: err}
		}
	}
	return s, nil
}

// State returns the current lifecycle state
func (s *TrainingSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CheckpointPath returns the metadata file written by Run, or "" before the checkpoint
func (s *TrainingSession) CheckpointPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpointPath
}

func (s *TrainingSession) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run executes the session. Any backend, log or checkpoint failure aborts the
// run and leaves the log without checkpoint and session_complete records.
func (s *TrainingSession) Run(ctx context.Context) (err error) {
	s.mu.Lock()
	if s.ran {
		s.mu.Unlock()
		return ErrSessionAlreadyRun
	}
	s.ran = true
	s.mu.Unlock()

	ctx, span := otel.Tracer("training-orchestrator/executor").Start(ctx, "TrainingSession.Run")
	defer span.End()

	backendName := "unselected"
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if s.metrics != nil {
			s.metrics.RecordOutcome(ctx, backendName, err == nil)
		}
	}()

	logPath := s.rc.LogFile()
	events, err := monitoring.OpenEventLogger(logPath, s.now)
	if err != nil {
		return &IOError{Op: "open event log", Path: logPath, Err: err}
	}
	defer events.Close()

	emit := func(name models.EventName, payload map[string]interface{}) error {
		if err := events.Emit(name, payload); err != nil {
			return &IOError{Op: "write " + string(name) + " event", Path: logPath, Err: err}
		}
		return nil
	}

	devices := s.rc.Devices()
	if err := emit(models.EventSessionStart, map[string]interface{}{
		"profile": s.rc.Profile(),
		"devices": devices,
	}); err != nil {
		return err
	}

	backend, err := s.selectBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()
	backendName = backend.Name()

	cfg := s.rc.Config()
	span.SetAttributes(
		attribute.String("trn.backend", backendName),
		attribute.Int("trn.steps", cfg.Steps),
		attribute.String("trn.profile", s.rc.Profile()),
	)
	s.logger.Info("training session started",
		"backend", backendName, "steps", cfg.Steps, "profile", s.rc.Profile(), "log_file", logPath)

	s.setState(StateExecuting)
	for step := 0; step < cfg.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := backend.Step(ctx, step)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &BackendError{Backend: backendName, Op: fmt.Sprintf("step %d", step), Err: err}
		}
		if s.metrics != nil {
			s.metrics.RecordStep(ctx, backendName)
		}
		if step%StepEventInterval != 0 {
			continue
		}

		payload := map[string]interface{}{"step": step, "loss": res.Loss}
		if res.Simulated {
			payload["simulated"] = true
		}
		if err := emit(models.EventStep, payload); err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.RecordLoss(ctx, backendName, res.Loss)
		}
		s.logger.Debug("training step", "step", step, "loss", res.Loss)
	}

	path, meta, err := s.checkpoint.Write(cfg, devices)
	if err != nil {
		return &IOError{Op: "write checkpoint", Path: cfg.CheckpointDir, Err: err}
	}
	s.mu.Lock()
	s.checkpointPath = path
	s.mu.Unlock()
	s.setState(StateCheckpointWritten)

	if err := emit(models.EventCheckpoint, map[string]interface{}{"meta": path}); err != nil {
		return err
	}
	if err := emit(models.EventSessionComplete, map[string]interface{}{}); err != nil {
		return err
	}
	s.setState(StateComplete)

	s.logger.Info("training session complete", "checkpoint", meta.ID, "path", path)
	return nil
}

func (s *TrainingSession) selectBackend(ctx context.Context) (Backend, error) {
	if s.backend != nil {
		return s.backend, nil
	}
	caps := s.caps
	if caps == nil {
		detected := DetectCapabilities(ctx, s.logger)
		caps = &detected
	}
	backend, scope, err := SelectBackend(*caps, s.rc, BackendOptions{StepDelay: s.stepDelay})
	if err != nil {
		return nil, err
	}
	s.logger.Info("backend selected",
		"backend", backend.Name(), "device", scope.Device, "visible_devices", scope.Visible)
	return backend, nil
}
