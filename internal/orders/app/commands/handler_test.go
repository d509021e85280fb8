package commands_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type handlerFunc func(ctx context.Context, cmd commands.RetryPaymentCommand) (commands.RetryPaymentResult, error)

func (f handlerFunc) Handle(ctx context.Context, cmd commands.RetryPaymentCommand) (commands.RetryPaymentResult, error) {
	return f(ctx, cmd)
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func TestObservableHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("success ends an ok span named after the command", func(t *testing.T) {
		recorder := recordSpans(t)
		inner := handlerFunc(func(context.Context, commands.RetryPaymentCommand) (commands.RetryPaymentResult, error) {
			return commands.RetryPaymentResult{Order: &domain.Order{ID: "order-1"}}, nil
		})
		handler := commands.NewObservableHandler[commands.RetryPaymentCommand, commands.RetryPaymentResult](
			"RetryPayment", inner, discardLogger(), newTestMetrics(t))

		res, err := handler.Handle(ctx, commands.RetryPaymentCommand{OrderID: "order-1"})
		require.NoError(t, err)
		assert.Equal(t, "order-1", res.Order.ID)

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, "RetryPayment.Handle", spans[0].Name())
		assert.Equal(t, codes.Ok, spans[0].Status().Code)
	})

	t.Run("result is passed through on error", func(t *testing.T) {
		recorder := recordSpans(t)
		inner := handlerFunc(func(context.Context, commands.RetryPaymentCommand) (commands.RetryPaymentResult, error) {
			return commands.RetryPaymentResult{Order: &domain.Order{ID: "order-1"}}, errors.New("gateway down")
		})
		var logs bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&logs, nil))
		handler := commands.NewObservableHandler[commands.RetryPaymentCommand, commands.RetryPaymentResult](
			"RetryPayment", inner, logger, newTestMetrics(t))

		res, err := handler.Handle(ctx, commands.RetryPaymentCommand{OrderID: "order-1"})
		require.Error(t, err)
		require.NotNil(t, res.Order)

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)
		assert.Contains(t, logs.String(), `"level":"ERROR"`)
		assert.Contains(t, logs.String(), `"order.id":"order-1"`)
	})

	t.Run("input errors are logged as warnings", func(t *testing.T) {
		recordSpans(t)
		inner := handlerFunc(func(context.Context, commands.RetryPaymentCommand) (commands.RetryPaymentResult, error) {
			return commands.RetryPaymentResult{}, domain.ErrMissingOrderID
		})
		var logs bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&logs, nil))
		handler := commands.NewObservableHandler[commands.RetryPaymentCommand, commands.RetryPaymentResult](
			"RetryPayment", inner, logger, newTestMetrics(t))

		_, err := handler.Handle(ctx, commands.RetryPaymentCommand{})
		require.ErrorIs(t, err, domain.ErrMissingOrderID)

		assert.Contains(t, logs.String(), `"level":"WARN"`)
		assert.NotContains(t, logs.String(), `"level":"ERROR"`)
	})

	for _, outcomeErr := range []error{domain.ErrUnknownTransaction, domain.ErrSettlementConflict} {
		t.Run("discarded outcome is a warning: "+outcomeErr.Error(), func(t *testing.T) {
			recordSpans(t)
			inner := handlerFunc(func(context.Context, commands.RetryPaymentCommand) (commands.RetryPaymentResult, error) {
				return commands.RetryPaymentResult{}, fmt.Errorf("apply outcome: %w", outcomeErr)
			})
			var logs bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&logs, nil))
			handler := commands.NewObservableHandler[commands.RetryPaymentCommand, commands.RetryPaymentResult](
				"ApplyOutcome", inner, logger, newTestMetrics(t))

			_, err := handler.Handle(ctx, commands.RetryPaymentCommand{OrderID: "order-1"})
			require.ErrorIs(t, err, outcomeErr)

			assert.Contains(t, logs.String(), `"level":"WARN"`)
			assert.Contains(t, logs.String(), "payment outcome discarded")
			assert.NotContains(t, logs.String(), `"level":"ERROR"`)
		})
	}
}
