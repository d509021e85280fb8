package events

import (
	"context"
	"log/slog"

	"github.com/dejobratic/storefront/internal/orders/domain"
)

const (
	TypeOrderPlaced    = "order.placed"
	TypePaymentSettled = "order.payment_settled"
	TypePaymentFailed  = "order.payment_failed"
)

// LogPublisher writes order events to the log. Receipt email, cart clearing
// and conversion tracking read them from there until a broker is wired.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With("component", "events")}
}

func (p *LogPublisher) PublishOrderPlaced(ctx context.Context, order domain.Order) error {
	p.logger.InfoContext(ctx, "event::"+TypeOrderPlaced,
		"order_id", order.ID,
		"customer_id", order.CustomerID,
		"payment_method", order.PaymentMethod,
		"total", order.Total.String(),
		"currency", order.Currency,
	)
	return nil
}

func (p *LogPublisher) PublishPaymentSettled(ctx context.Context, order domain.Order) error {
	p.logger.InfoContext(ctx, "event::"+TypePaymentSettled,
		"order_id", order.ID,
		"customer_id", order.CustomerID,
		"settled_transaction", order.SettledTransactionRef,
		"provider_reference", order.ProviderReference,
		"total", order.Total.String(),
	)
	return nil
}

func (p *LogPublisher) PublishPaymentFailed(ctx context.Context, order domain.Order, reason string) error {
	p.logger.InfoContext(ctx, "event::"+TypePaymentFailed,
		"order_id", order.ID,
		"customer_id", order.CustomerID,
		"reason", reason,
	)
	return nil
}
