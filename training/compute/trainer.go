package compute

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
)

// ModelConfig sizes the linear -> ReLU -> linear model and its batches
type ModelConfig struct {
	BatchSize    int
	InputDim     int
	HiddenDim    int
	OutputDim    int
	LearningRate float64
	Seed         int64
}

func (c ModelConfig) validate() error {
	if c.BatchSize <= 0 || c.InputDim <= 0 || c.HiddenDim <= 0 || c.OutputDim <= 0 {
		return fmt.Errorf("invalid model shape batch=%d in=%d hidden=%d out=%d",
			c.BatchSize, c.InputDim, c.HiddenDim, c.OutputDim)
	}
	if !(c.LearningRate > 0) {
		return fmt.Errorf("invalid learning rate %g", c.LearningRate)
	}
	return nil
}

// Trainer fits the model to an all-zero target on synthetic normal batches
// with MSE loss and Adam. Weights and batches are both derived from Seed.
type Trainer struct {
	cfg     ModelConfig
	device  Device
	backend backends.Backend
	trainer *train.Trainer
	rng     *rand.Rand
	target  *tensors.Tensor
}

// NewTrainer creates the backend for device and builds the model on it
func NewTrainer(device Device, cfg ModelConfig) (*Trainer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	backend, err := NewBackend(device)
	if err != nil {
		return nil, err
	}

	ctx := context.New()
	ctx.RngStateFromSeed(cfg.Seed)
	ctx.SetParam(optimizers.ParamLearningRate, cfg.LearningRate)

	t := &Trainer{
		cfg:     cfg,
		device:  device,
		backend: backend,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		target: tensors.FromFlatDataAndDimensions(
			make([]float32, cfg.BatchSize*cfg.OutputDim), cfg.BatchSize, cfg.OutputDim),
	}
	if err := exceptions.TryCatch[error](func() {
		t.trainer = train.NewTrainer(backend, ctx, t.model, losses.MeanSquaredError,
			optimizers.Adam().Done(), nil, nil)
	}); err != nil {
		backend.Finalize()
		return nil, fmt.Errorf("build trainer: %w", err)
	}
	return t, nil
}

// model is linear -> ReLU -> linear
func (t *Trainer) model(ctx *context.Context, _ any, inputs []*graph.Node) []*graph.Node {
	hidden := layers.Dense(ctx.In("hidden"), inputs[0], true, t.cfg.HiddenDim)
	hidden = graph.Max(hidden, graph.ZerosLike(hidden))
	return []*graph.Node{layers.Dense(ctx.In("output"), hidden, true, t.cfg.OutputDim)}
}

// Device returns the placement the trainer runs on
func (t *Trainer) Device() Device {
	return t.device
}

// Step draws a batch, runs forward and backward, applies one Adam update and
// returns the batch loss.
func (t *Trainer) Step() (float64, error) {
	batch := make([]float32, t.cfg.BatchSize*t.cfg.InputDim)
	for i := range batch {
		batch[i] = float32(t.rng.NormFloat64())
	}
	x := tensors.FromFlatDataAndDimensions(batch, t.cfg.BatchSize, t.cfg.InputDim)

	var metrics []*tensors.Tensor
	if err := exceptions.TryCatch[error](func() {
		metrics = t.trainer.TrainStep(nil, []*tensors.Tensor{x}, []*tensors.Tensor{t.target})
	}); err != nil {
		return 0, err
	}
	if len(metrics) == 0 {
		return 0, errors.New("train step returned no metrics")
	}
	return scalar(metrics[0])
}

// Close releases the backend
func (t *Trainer) Close() error {
	t.backend.Finalize()
	return nil
}

func scalar(t *tensors.Tensor) (float64, error) {
	switch v := t.Value().(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("loss has unexpected type %T", v)
	}
}
