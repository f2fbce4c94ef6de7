package executor

import (
	"context"
	"time"
)

// Simulated backend constants
const (
	SimulatedBackendName = "simulated"
	SimulatedInitialLoss = 1.0
	SimulatedDecay       = 0.99
	DefaultStepDelay     = 10 * time.Millisecond
)

// SimulatedBackend stands in for the real backend when it is unavailable.
// The loss reported for step i is 0.99^i computed as a running product: 1.0
// multiplied by 0.99 once per completed step. It is bit-for-bit reproducible
// but may differ from math.Pow(0.99, i) in the last ulp.
type SimulatedBackend struct {
	loss  float64
	delay time.Duration
}

// NewSimulatedBackend creates a simulated backend sleeping delay per step
func NewSimulatedBackend(delay time.Duration) *SimulatedBackend {
	return &SimulatedBackend{loss: SimulatedInitialLoss, delay: delay}
}

// Name implements Backend
func (b *SimulatedBackend) Name() string { return SimulatedBackendName }

// Step reports the current loss, decays it and waits out the artificial delay
func (b *SimulatedBackend) Step(ctx context.Context, _ int) (StepResult, error) {
	res := StepResult{Loss: b.loss, Simulated: true}
	b.loss *= SimulatedDecay

	if b.delay > 0 {
		timer := time.NewTimer(b.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
	return res, nil
}

// Close implements Backend
func (b *SimulatedBackend) Close() error { return nil }
