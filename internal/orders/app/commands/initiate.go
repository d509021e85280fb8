package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/google/uuid"
)

// PaymentSettings are the storefront-wide values sent with every request to pay.
type PaymentSettings struct {
	Currency    string
	CallbackURL string
}

// newExternalID returns a fresh provider correlation id. The provider expects
// a UUID v4 as the reference id.
func newExternalID() string {
	return uuid.NewString()
}

// initiator sends a persisted pending attempt to the gateway. It never retries:
// a rejected request fails the attempt through the outcome handler, and a new
// attempt is the shopper's call.
type initiator struct {
	gateway  ports.PaymentGateway
	recheck  ports.StatusRecheck
	outcomes Handler[ApplyOutcomeCommand, ApplyOutcomeResult]
	settings PaymentSettings
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// initiate returns the latest known order. When the gateway rejects the
// request the error wraps ports.ErrGatewayUnavailable and the returned order
// already reflects the failed attempt.
func (i *initiator) initiate(ctx context.Context, order *domain.Order, tx domain.Transaction, trigger string) (*domain.Order, error) {
	err := i.gateway.RequestToPay(ctx, ports.PaymentRequest{
		ExternalID:   tx.ExternalID,
		Amount:       tx.Amount,
		Currency:     order.Currency,
		PayerHandle:  tx.PayerHandle,
		CallbackURL:  i.settings.CallbackURL,
		PayerMessage: fmt.Sprintf("Payment for order %s", order.ID),
		PayeeNote:    order.ID,
	})
	i.metrics.RecordPaymentAttempt(ctx, trigger, err == nil)

	if err == nil {
		i.logger.InfoContext(ctx, "payment request accepted",
			"order_id", order.ID,
			"external_id", tx.ExternalID,
			"trigger", trigger,
		)
		i.recheck.Schedule(tx.ExternalID)
		return order, nil
	}

	initErr := fmt.Errorf("%w: payment initiation failed, please retry: %w", ports.ErrGatewayUnavailable, err)

	res, applyErr := i.outcomes.Handle(ctx, ApplyOutcomeCommand{
		ExternalID: tx.ExternalID,
		Status:     domain.TransactionFailed,
		Reason:     "initiation failed: " + err.Error(),
		Source:     SourceInitiation,
	})
	if applyErr != nil {
		i.logger.ErrorContext(ctx, "failed to record rejected payment request",
			"order_id", order.ID,
			"external_id", tx.ExternalID,
			"error", applyErr,
		)
		return order, initErr
	}
	return res.Order, initErr
}
