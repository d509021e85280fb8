package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	ordersPlacedTotal metric.Int64Counter
	paymentAttempts   metric.Int64Counter
	paymentOutcomes   metric.Int64Counter
	commandDuration   metric.Float64Histogram
	versionConflicts  metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.ordersPlacedTotal, err = meter.Int64Counter(
		"orders_placed_total",
		metric.WithDescription("Total number of checkout submissions"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create orders_placed_total counter: %w", err)
	}

	m.paymentAttempts, err = meter.Int64Counter(
		"payment_attempts_total",
		metric.WithDescription("Request-to-pay attempts sent to the provider"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create payment_attempts_total counter: %w", err)
	}

	m.paymentOutcomes, err = meter.Int64Counter(
		"payment_outcomes_total",
		metric.WithDescription("Provider outcomes applied to orders"),
		metric.WithUnit("{outcome}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create payment_outcomes_total counter: %w", err)
	}

	m.commandDuration, err = meter.Float64Histogram(
		"order_command_duration_seconds",
		metric.WithDescription("Duration of order commands"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_command_duration histogram: %w", err)
	}

	m.versionConflicts, err = meter.Int64Counter(
		"order_version_conflicts_total",
		metric.WithDescription("Concurrent order updates that had to be re-applied"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_version_conflicts_total counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordOrderPlaced(ctx context.Context, paymentMethod string, success bool) {
	m.ordersPlacedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment_method", paymentMethod),
		attribute.String("status", statusLabel(success)),
	))
}

// RecordPaymentAttempt counts a request-to-pay call. trigger is "checkout" or
// "retry".
func (m *Metrics) RecordPaymentAttempt(ctx context.Context, trigger string, accepted bool) {
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	m.paymentAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("result", result),
	))
}

func (m *Metrics) RecordPaymentOutcome(ctx context.Context, source, result string) {
	m.paymentOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("result", result),
	))
}

func (m *Metrics) RecordCommand(ctx context.Context, command string, durationSeconds float64, success bool) {
	m.commandDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("status", statusLabel(success)),
	))
}

func (m *Metrics) RecordVersionConflict(ctx context.Context, command string) {
	m.versionConflicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
	))
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
