package executor

import (
	"context"
	"log/slog"
	"time"

	"training-orchestrator/core/resource_manager"
	"training-orchestrator/training/compute"
)

// Backend executes training steps for a session
type Backend interface {
	// Name identifies the backend in logs and metrics
	Name() string
	// Step runs iteration step and reports the loss it computed
	Step(ctx context.Context, step int) (StepResult, error)
	Close() error
}

// StepResult is the outcome of one training iteration
type StepResult struct {
	Loss      float64
	Simulated bool
}

// Capabilities is what DetectCapabilities found for this process
type Capabilities struct {
	// RealCompute is true when a gomlx backend can be created
	RealCompute bool
	// Accelerators is the number of usable accelerator devices
	Accelerators int
}

// DetectCapabilities runs once per process. Accelerators are only counted
// when the real backend is available, since nothing else consumes them.
func DetectCapabilities(ctx context.Context, logger *slog.Logger) Capabilities {
	if logger == nil {
		logger = slog.Default()
	}
	var caps Capabilities
	if err := compute.Available(); err != nil {
		logger.Warn("real backend unavailable", "error", err)
	} else {
		caps.RealCompute = true
	}
	if caps.RealCompute {
		caps.Accelerators = resource_manager.Autodetect(ctx, logger).Accelerators()
	}
	return caps
}

// SelectBackend picks the backend for a run from the detected capabilities
func SelectBackend(caps Capabilities, rc RunnerContext, opts BackendOptions) (Backend, DeviceScope, error) {
	if !caps.RealCompute {
		return NewSimulatedBackend(opts.StepDelay), DeviceScope{Device: DefaultDevice}, nil
	}
	scope := BindDevice(rc.Devices(), caps.Accelerators)
	b, err := NewRealBackend(rc.Config(), scope)
	if err != nil {
		return nil, scope, &BackendError{Backend: RealBackendName, Op: "init", Err: err}
	}
	return b, b.Scope(), nil
}

// BackendOptions tunes backend construction
type BackendOptions struct {
	// StepDelay is the artificial per-step delay of the simulated backend
	StepDelay time.Duration
}
