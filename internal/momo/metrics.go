package momo

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	requestDuration metric.Float64Histogram
	tokenFetches    metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.requestDuration, err = meter.Float64Histogram(
		"momo_request_duration_seconds",
		metric.WithDescription("Mobile money provider call latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create momo_request_duration histogram: %w", err)
	}

	m.tokenFetches, err = meter.Int64Counter(
		"momo_token_fetches_total",
		metric.WithDescription("Access token requests sent to the provider"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create momo_token_fetches_total counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordRequest(ctx context.Context, operation string, durationSeconds float64, success bool) {
	m.requestDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", statusLabel(success)),
	))
}

func (m *Metrics) RecordTokenFetch(ctx context.Context, success bool) {
	m.tokenFetches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", statusLabel(success)),
	))
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
