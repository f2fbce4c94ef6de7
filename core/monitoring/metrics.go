package monitoring

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SessionMetrics records training progress on an OpenTelemetry meter
type SessionMetrics struct {
	steps    metric.Int64Counter
	loss     metric.Float64Histogram
	sessions metric.Int64Counter
}

// NewSessionMetrics registers instruments on the provider; nil means the global provider
func NewSessionMetrics(provider metric.MeterProvider) (*SessionMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter("training-orchestrator/session")

	steps, err := meter.Int64Counter("trn.session.steps",
		metric.WithDescription("Training steps executed"))
	if err != nil {
		return nil, err
	}
	loss, err := meter.Float64Histogram("trn.session.loss",
		metric.WithDescription("Loss values reported by step events"))
	if err != nil {
		return nil, err
	}
	sessions, err := meter.Int64Counter("trn.session.completed",
		metric.WithDescription("Training sessions by outcome"))
	if err != nil {
		return nil, err
	}
	return &SessionMetrics{steps: steps, loss: loss, sessions: sessions}, nil
}

// RecordStep counts one executed step for backend
func (m *SessionMetrics) RecordStep(ctx context.Context, backend string) {
	m.steps.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
}

// RecordLoss records a reported loss value
func (m *SessionMetrics) RecordLoss(ctx context.Context, backend string, loss float64) {
	m.loss.Record(ctx, loss, metric.WithAttributes(attribute.String("backend", backend)))
}

// RecordOutcome counts a finished session
func (m *SessionMetrics) RecordOutcome(ctx context.Context, backend string, ok bool) {
	outcome := "completed"
	if !ok {
		outcome = "failed"
	}
	m.sessions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("outcome", outcome),
	))
}
