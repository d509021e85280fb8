package ports

import (
	"context"

	"github.com/dejobratic/storefront/internal/orders/domain"
)

// EventBus publishes order lifecycle events to downstream collaborators
// (receipt email, cart clearing, conversion tracking). Publishing is
// best-effort: callers log failures and carry on.
type EventBus interface {
	PublishOrderPlaced(ctx context.Context, order domain.Order) error
	PublishPaymentSettled(ctx context.Context, order domain.Order) error
	PublishPaymentFailed(ctx context.Context, order domain.Order, reason string) error
}
