package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"training-orchestrator/core/executor"
	"training-orchestrator/core/models"
	"training-orchestrator/core/monitoring"
	"training-orchestrator/core/repository"
	"training-orchestrator/core/resource_manager"
	"training-orchestrator/core/spec"
	"training-orchestrator/storage"
)

// Profiles applied when a request leaves the profile empty
const (
	DefaultProfile = "prod"
	ResumeProfile  = "resume"
)

// JobIDPrefix prefixes every run identifier
const JobIDPrefix = "job-"

// RunRequest describes a run to launch
type RunRequest struct {
	ConfigPath  string
	WeightsPath string
	Profile     string
	// Devices is an explicit device list; it takes precedence over CPUOnly
	Devices     []string
	CPUOnly     bool
	DeviceCount int
	LogDir      string
}

// Launcher records runs in the registry, allocates devices, executes the
// training session and publishes lifecycle events.
type Launcher struct {
	store     repository.RunStore
	devices   *resource_manager.DeviceManager
	publisher monitoring.Publisher
	logger    *slog.Logger
	now       func() time.Time

	sessionOpts []executor.Option
}

// NewLauncher creates a launcher. publisher may be nil.
func NewLauncher(
	store repository.RunStore,
	devices *resource_manager.DeviceManager,
	publisher monitoring.Publisher,
	logger *slog.Logger,
	sessionOpts ...executor.Option,
) *Launcher {
	if publisher == nil {
		publisher = monitoring.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		store:       store,
		devices:     devices,
		publisher:   publisher,
		logger:      logger,
		now:         time.Now,
		sessionOpts: sessionOpts,
	}
}

// Submit launches a run and blocks until its session finishes. The returned run
// reflects the final status; the error is the session's failure, if any.
func (l *Launcher) Submit(ctx context.Context, req RunRequest) (*models.Run, error) {
	if _, err := os.Stat(req.ConfigPath); err != nil {
		return nil, fmt.Errorf("config file not found: %w", err)
	}
	if req.WeightsPath != "" {
		if _, err := os.Stat(req.WeightsPath); err != nil {
			return nil, fmt.Errorf("weights file not found: %w", err)
		}
	}
	cfg, err := spec.LoadTrainingConfig(req.ConfigPath)
	if err != nil {
		return nil, err
	}

	plan := l.devices.Allocate(l.preference(req), req.DeviceCount)
	now := l.now()
	logPath, err := LogPath(req.LogDir, now)
	if err != nil {
		return nil, err
	}

	profile := req.Profile
	if profile == "" {
		profile = DefaultProfile
	}
	run := &models.Run{
		ID:          JobIDPrefix + uuid.New().String(),
		SubmittedAt: now.UTC(),
		Config:      req.ConfigPath,
		Profile:     profile,
		Devices:     plan.IDs(),
		LogPath:     logPath,
		Status:      models.RunStatusQueued,
	}
	if req.WeightsPath != "" {
		weights := req.WeightsPath
		run.Weights = &weights
	}

	if err := l.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	logger := l.logger.With("job_id", run.ID)
	logger.Info("job queued", "profile", run.Profile, "devices", run.Devices,
		"cuda_visible_devices", plan.CUDAVisible(), "log_path", run.LogPath)
	l.publish(logger, models.BusJobSubmitted, run, map[string]interface{}{
		"config":  run.Config,
		"weights": run.Weights,
	})

	if err := l.setStatus(ctx, run, models.RunStatusRunning); err != nil {
		return run, err
	}
	logger.Info("job started")

	checkpoint, runErr := l.execute(ctx, cfg, run)
	if runErr != nil {
		if err := l.setStatus(ctx, run, models.RunStatusFailed); err != nil {
			logger.Error("failed to mark job failed", "error", err)
		}
		logger.Error("job failed", "error", runErr)
		l.publish(logger, models.BusJobFailed, run, map[string]interface{}{"error": runErr.Error()})
		return run, runErr
	}

	finished := l.now().UTC()
	for _, artifact := range []models.RunArtifact{
		{Type: models.ArtifactTypeCheckpoint, URI: checkpoint, CreatedAt: finished},
		{Type: models.ArtifactTypeLog, URI: run.LogPath, CreatedAt: finished},
	} {
		if err := l.store.AddArtifact(ctx, run.ID, artifact); err != nil {
			return run, fmt.Errorf("failed to record %s artifact: %w", artifact.Type, err)
		}
		run.Artifacts = append(run.Artifacts, artifact)
	}
	if err := l.setStatus(ctx, run, models.RunStatusCompleted); err != nil {
		return run, err
	}
	logger.Info("job completed", "checkpoint", checkpoint)
	l.publish(logger, models.BusJobCompleted, run, map[string]interface{}{})
	return run, nil
}

// Resume launches a run seeded from an existing checkpoint metadata file
func (l *Launcher) Resume(ctx context.Context, checkpoint string, req RunRequest) (*models.Run, error) {
	if _, err := storage.LoadCheckpointMetadata(checkpoint); err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", checkpoint, err)
	}
	req.WeightsPath = checkpoint
	req.CPUOnly = false
	req.DeviceCount = 0
	if req.Profile == "" {
		req.Profile = ResumeProfile
	}
	return l.Submit(ctx, req)
}

func (l *Launcher) preference(req RunRequest) resource_manager.Preference {
	switch {
	case len(req.Devices) > 0:
		return resource_manager.Explicit(req.Devices)
	case req.CPUOnly:
		return resource_manager.CPUOnly()
	default:
		return resource_manager.GPUFirst()
	}
}

func (l *Launcher) execute(ctx context.Context, cfg *spec.TrainingConfig, run *models.Run) (string, error) {
	weights := ""
	if run.Weights != nil {
		weights = *run.Weights
	}
	rc := executor.NewRunnerContext(cfg, run.Devices, weights, run.Profile, run.LogPath)

	opts := append([]executor.Option{executor.WithLogger(l.logger)}, l.sessionOpts...)
	session, err := executor.NewTrainingSession(rc, opts...)
	if err != nil {
		return "", err
	}
	if err := session.Run(ctx); err != nil {
		return "", err
	}
	return session.CheckpointPath(), nil
}

func (l *Launcher) setStatus(ctx context.Context, run *models.Run, status models.RunStatus) error {
	if err := l.store.UpdateRunStatus(ctx, run.ID, status); err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	run.Status = status
	return nil
}

// publish never fails a run; bus delivery errors are logged
func (l *Launcher) publish(logger *slog.Logger, eventType models.BusEventType, run *models.Run, payload map[string]interface{}) {
	payload["job_id"] = run.ID
	if err := l.publisher.Publish(eventType, payload); err != nil {
		logger.Warn("failed to publish job event", "event_type", eventType, "error", err)
	}
}

// LogPath returns <dir>/YYYY/MM/DD/job-YYYYMMDD-HHMMSS.log.jsonl for t and
// creates the dated directory.
func LogPath(dir string, t time.Time) (string, error) {
	day := filepath.Join(dir, t.Format("2006"), t.Format("01"), t.Format("02"))
	if err := os.MkdirAll(day, 0o755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	return filepath.Join(day, "job-"+t.UTC().Format("20060102-150405")+".log.jsonl"), nil
}
