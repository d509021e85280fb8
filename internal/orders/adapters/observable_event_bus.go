package adapters

import (
	"context"
	"time"

	"github.com/dejobratic/storefront/internal/events"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableEventBus struct {
	bus     ports.EventBus
	metrics *events.Metrics
}

func NewObservableEventBus(bus ports.EventBus, metrics *events.Metrics) *ObservableEventBus {
	return &ObservableEventBus{
		bus:     bus,
		metrics: metrics,
	}
}

func (e *ObservableEventBus) PublishOrderPlaced(ctx context.Context, order domain.Order) error {
	return e.observe(ctx, events.TypeOrderPlaced, order.ID, func(ctx context.Context) error {
		return e.bus.PublishOrderPlaced(ctx, order)
	}, attribute.String("order.payment_method", string(order.PaymentMethod)))
}

func (e *ObservableEventBus) PublishPaymentSettled(ctx context.Context, order domain.Order) error {
	return e.observe(ctx, events.TypePaymentSettled, order.ID, func(ctx context.Context) error {
		return e.bus.PublishPaymentSettled(ctx, order)
	}, attribute.String("payment.settled_transaction", order.SettledTransactionRef))
}

func (e *ObservableEventBus) PublishPaymentFailed(ctx context.Context, order domain.Order, reason string) error {
	return e.observe(ctx, events.TypePaymentFailed, order.ID, func(ctx context.Context) error {
		return e.bus.PublishPaymentFailed(ctx, order, reason)
	}, attribute.String("failure.reason", reason))
}

func (e *ObservableEventBus) observe(
	ctx context.Context,
	eventType, orderID string,
	publish func(context.Context) error,
	attrs ...attribute.KeyValue,
) error {
	ctx, span := telemetry.StartSpan(ctx, "EventBus.Publish "+eventType)
	defer span.End()

	telemetry.AddSpanAttributes(span, append(attrs,
		telemetry.OrderIDKey.String(orderID),
		attribute.String("event.type", eventType),
	)...)

	start := time.Now()
	err := publish(ctx)
	e.metrics.RecordPublish(ctx, eventType, time.Since(start).Seconds(), err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}
