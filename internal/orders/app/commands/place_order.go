package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

type PlaceOrderCommand struct {
	CustomerID      string
	Items           []domain.LineItem
	DeliveryFee     decimal.Decimal
	DeliveryAddress domain.DeliveryAddress
	PaymentMethod   domain.PaymentMethod
	PayerHandle     string
}

func (c PlaceOrderCommand) SpanAttributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("order.customer_id", c.CustomerID),
		attribute.String("order.payment_method", string(c.PaymentMethod)),
		attribute.Int("order.item_count", len(c.Items)),
		attribute.String("order.district", c.DeliveryAddress.District),
	}
}

// PlaceOrderHandler turns a checkout submission into an order and, for prepaid
// orders, sends the first request to pay.
type PlaceOrderHandler struct {
	initiator
	repo   ports.OrderRepository
	events ports.EventBus
	policy domain.CheckoutPolicy
	now    func() time.Time
	newID  func() string
}

func NewPlaceOrderHandler(
	repo ports.OrderRepository,
	events ports.EventBus,
	gateway ports.PaymentGateway,
	recheck ports.StatusRecheck,
	outcomes Handler[ApplyOutcomeCommand, ApplyOutcomeResult],
	policy domain.CheckoutPolicy,
	settings PaymentSettings,
	logger *slog.Logger,
	metrics *metrics.Metrics,
) *PlaceOrderHandler {
	return &PlaceOrderHandler{
		initiator: initiator{
			gateway:  gateway,
			recheck:  recheck,
			outcomes: outcomes,
			settings: settings,
			logger:   logger,
			metrics:  metrics,
		},
		repo:   repo,
		events: events,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// Handle returns the persisted order. A gateway rejection returns both the
// order and an error wrapping ports.ErrGatewayUnavailable; the order stays.
func (h *PlaceOrderHandler) Handle(ctx context.Context, cmd PlaceOrderCommand) (*domain.Order, error) {
	now := h.now()

	order, err := domain.NewOrder(domain.NewOrderParams{
		ID:              h.newID(),
		CustomerID:      cmd.CustomerID,
		Items:           cmd.Items,
		DeliveryFee:     cmd.DeliveryFee,
		Currency:        h.settings.Currency,
		PaymentMethod:   cmd.PaymentMethod,
		PayerHandle:     cmd.PayerHandle,
		DeliveryAddress: cmd.DeliveryAddress,
	}, now)
	if err != nil {
		h.metrics.RecordOrderPlaced(ctx, string(cmd.PaymentMethod), false)
		return nil, err
	}
	if err := h.policy.ValidatePayment(cmd.PaymentMethod, cmd.PayerHandle, cmd.DeliveryAddress); err != nil {
		h.metrics.RecordOrderPlaced(ctx, string(cmd.PaymentMethod), false)
		return nil, err
	}

	var tx domain.Transaction
	if order.PaymentMethod == domain.PaymentPrepaid {
		if tx, err = order.StartAttempt(newExternalID(), now); err != nil {
			return nil, err
		}
	}

	if err := order.Validate(); err != nil {
		return nil, err
	}
	if err := h.repo.Create(ctx, order); err != nil {
		h.metrics.RecordOrderPlaced(ctx, string(order.PaymentMethod), false)
		return nil, err
	}
	order.Version = 1
	h.metrics.RecordOrderPlaced(ctx, string(order.PaymentMethod), true)

	h.logger.InfoContext(ctx, "order placed",
		"order_id", order.ID,
		"customer_id", order.CustomerID,
		"payment_method", order.PaymentMethod,
		"total", order.Total.String(),
	)

	if err := h.events.PublishOrderPlaced(ctx, order); err != nil {
		h.logger.WarnContext(ctx, "failed to publish order placed event", "order_id", order.ID, "error", err)
	}

	if order.PaymentMethod != domain.PaymentPrepaid {
		return &order, nil
	}
	return h.initiate(ctx, &order, tx, "checkout")
}
