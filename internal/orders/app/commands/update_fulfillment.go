package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// UpdateFulfillmentCommand is an administrative change to shipping state.
// It never touches payment state.
type UpdateFulfillmentCommand struct {
	OrderID string
	Status  domain.FulfillmentStatus
}

func (c UpdateFulfillmentCommand) SpanAttributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		telemetry.OrderIDKey.String(c.OrderID),
		attribute.String("order.fulfillment_status", string(c.Status)),
	}
}

type UpdateFulfillmentHandler struct {
	repo    ports.OrderRepository
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewUpdateFulfillmentHandler(repo ports.OrderRepository, logger *slog.Logger, metrics *metrics.Metrics) *UpdateFulfillmentHandler {
	return &UpdateFulfillmentHandler{
		repo:    repo,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (h *UpdateFulfillmentHandler) Handle(ctx context.Context, cmd UpdateFulfillmentCommand) (*domain.Order, error) {
	if strings.TrimSpace(cmd.OrderID) == "" {
		return nil, domain.ErrMissingOrderID
	}

	var from domain.FulfillmentStatus
	order, err := updateOrder(ctx, h.repo, h.metrics, "UpdateFulfillment", byID(h.repo, cmd.OrderID),
		func(order *domain.Order) (bool, error) {
			from = order.FulfillmentStatus
			if err := order.UpdateFulfillment(cmd.Status, h.now()); err != nil {
				return false, err
			}
			return from != order.FulfillmentStatus, nil
		})
	if err != nil {
		return nil, err
	}

	if from != order.FulfillmentStatus {
		h.logger.InfoContext(ctx, "fulfillment updated",
			"order_id", order.ID,
			"from", from,
			"to", order.FulfillmentStatus,
		)
	}
	return order, nil
}
