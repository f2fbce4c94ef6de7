package executor

import (
	"context"
	"fmt"
	"math"

	"training-orchestrator/core/spec"
	"training-orchestrator/training/compute"
)

// Real backend constants
const (
	RealBackendName = "real"
	RealBackendSeed = 42
)

// RealBackend trains a linear -> ReLU -> linear model on synthetic batches
// against all-zero targets with MSE loss and Adam.
type RealBackend struct {
	scope   DeviceScope
	trainer *compute.Trainer
}

// NewRealBackend builds the model for cfg on the device named by scope. When
// the accelerator backend cannot be created the model is built on the default
// device instead; Scope reports where it ended up.
func NewRealBackend(cfg *spec.TrainingConfig, scope DeviceScope) (*RealBackend, error) {
	model := compute.ModelConfig{
		BatchSize:    cfg.BatchSize,
		InputDim:     cfg.InputDim,
		HiddenDim:    cfg.HiddenDim,
		OutputDim:    cfg.OutputDim,
		LearningRate: cfg.LearningRate,
		Seed:         RealBackendSeed,
	}
	device := compute.Device{Accelerated: scope.Accelerated(), Visible: scope.Visible}
	trainer, err := compute.NewTrainer(device, model)
	if err != nil && scope.Accelerated() {
		scope = DeviceScope{Device: DefaultDevice}
		trainer, err = compute.NewTrainer(compute.Device{}, model)
	}
	if err != nil {
		return nil, err
	}
	return &RealBackend{scope: scope, trainer: trainer}, nil
}

// Name implements Backend
func (b *RealBackend) Name() string { return RealBackendName }

// Scope returns the device scope the model runs on
func (b *RealBackend) Scope() DeviceScope { return b.scope }

// Step runs forward, backward and one optimizer update on a fresh synthetic batch
func (b *RealBackend) Step(_ context.Context, step int) (StepResult, error) {
	loss, err := b.trainer.Step()
	if err != nil {
		return StepResult{}, err
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return StepResult{}, fmt.Errorf("loss diverged at step %d: %v", step, loss)
	}
	return StepResult{Loss: loss}, nil
}

// Close releases the gomlx backend
func (b *RealBackend) Close() error { return b.trainer.Close() }
