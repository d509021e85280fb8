package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type RetryPaymentCommand struct {
	OrderID string
}

func (c RetryPaymentCommand) SpanAttributes() []attribute.KeyValue {
	return []attribute.KeyValue{telemetry.OrderIDKey.String(c.OrderID)}
}

// RetryPaymentResult carries the new attempt. Transaction is nil when the
// order was already paid and nothing was sent.
type RetryPaymentResult struct {
	Order       *domain.Order
	Transaction *domain.Transaction
}

// RetryPaymentHandler appends a fresh attempt to a prepaid order and sends it.
// Concurrent retries may leave several attempts pending at once; whichever
// resolves successfully first settles the order.
type RetryPaymentHandler struct {
	initiator
	repo ports.OrderRepository
	now  func() time.Time
}

func NewRetryPaymentHandler(
	repo ports.OrderRepository,
	gateway ports.PaymentGateway,
	recheck ports.StatusRecheck,
	outcomes Handler[ApplyOutcomeCommand, ApplyOutcomeResult],
	settings PaymentSettings,
	logger *slog.Logger,
	metrics *metrics.Metrics,
) *RetryPaymentHandler {
	return &RetryPaymentHandler{
		initiator: initiator{
			gateway:  gateway,
			recheck:  recheck,
			outcomes: outcomes,
			settings: settings,
			logger:   logger,
			metrics:  metrics,
		},
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (h *RetryPaymentHandler) Handle(ctx context.Context, cmd RetryPaymentCommand) (RetryPaymentResult, error) {
	if strings.TrimSpace(cmd.OrderID) == "" {
		return RetryPaymentResult{}, domain.ErrMissingOrderID
	}

	var tx domain.Transaction
	order, err := updateOrder(ctx, h.repo, h.metrics, "RetryPayment", byID(h.repo, cmd.OrderID),
		func(order *domain.Order) (bool, error) {
			var err error
			tx, err = order.StartAttempt(newExternalID(), h.now())
			if errors.Is(err, domain.ErrAlreadyPaid) {
				return false, nil
			}
			return err == nil, err
		})
	if err != nil {
		return RetryPaymentResult{Order: order}, err
	}
	if order.IsPaid() {
		return RetryPaymentResult{Order: order}, nil
	}

	h.logger.InfoContext(ctx, "payment retry started",
		"order_id", order.ID,
		"external_id", tx.ExternalID,
		"attempt", len(order.Transactions),
	)

	order, err = h.initiate(ctx, order, tx, "retry")
	if current, ok := order.Transaction(tx.ExternalID); ok {
		tx = current
	}
	return RetryPaymentResult{Order: order, Transaction: &tx}, err
}
