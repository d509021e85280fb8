package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Handler executes one command.
type Handler[C any, R any] interface {
	Handle(ctx context.Context, cmd C) (R, error)
}

// spanAttributer is implemented by commands that describe themselves on spans.
type spanAttributer interface {
	SpanAttributes() []attribute.KeyValue
}

// ObservableHandler wraps a Handler with a span, a duration sample and a log
// line on failure. The inner result is passed through even on error, since
// some commands return a persisted order alongside a gateway error.
type ObservableHandler[C any, R any] struct {
	name    string
	handler Handler[C, R]
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableHandler[C any, R any](name string, handler Handler[C, R], logger *slog.Logger, metrics *metrics.Metrics) *ObservableHandler[C, R] {
	return &ObservableHandler[C, R]{
		name:    name,
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableHandler[C, R]) Handle(ctx context.Context, cmd C) (R, error) {
	ctx, span := telemetry.StartSpan(ctx, o.name+".Handle")
	defer span.End()

	var attrs []attribute.KeyValue
	if a, ok := any(cmd).(spanAttributer); ok {
		attrs = a.SpanAttributes()
		telemetry.AddSpanAttributes(span, attrs...)
	}

	start := time.Now()
	result, err := o.handler.Handle(ctx, cmd)
	noise := domain.IsReconciliationNoise(err)
	o.metrics.RecordCommand(ctx, o.name, time.Since(start).Seconds(), err == nil || noise)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		args := []any{"command", o.name, "error", err}
		for _, kv := range attrs {
			args = append(args, string(kv.Key), kv.Value.Emit())
		}
		switch {
		case noise:
			o.logger.WarnContext(ctx, "payment outcome discarded", args...)
		case domain.IsInputError(err):
			o.logger.WarnContext(ctx, "command rejected", args...)
		default:
			o.logger.ErrorContext(ctx, "command failed", args...)
		}
		return result, err
	}

	telemetry.SetSpanSuccess(span)
	return result, nil
}
