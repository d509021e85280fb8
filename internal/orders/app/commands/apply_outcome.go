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

// OutcomeSource names where a payment outcome came from.
type OutcomeSource string

const (
	SourceCallback   OutcomeSource = "callback"
	SourcePoll       OutcomeSource = "poll"
	SourceInitiation OutcomeSource = "initiation"
)

// ApplyOutcomeCommand settles or fails one payment attempt. Callbacks, polls
// and failed initiations all end up here.
type ApplyOutcomeCommand struct {
	ExternalID        string
	Status            domain.TransactionStatus
	ProviderReference string
	Reason            string
	Source            OutcomeSource
}

func (c ApplyOutcomeCommand) Validate() error {
	if strings.TrimSpace(c.ExternalID) == "" {
		return domain.ErrUnknownTransaction
	}
	if !c.Status.IsTerminal() {
		return domain.ErrInvalidOutcome
	}
	return nil
}

func (c ApplyOutcomeCommand) SpanAttributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		telemetry.ExternalIDKey.String(c.ExternalID),
		attribute.String("payment.outcome", string(c.Status)),
		attribute.String("payment.source", string(c.Source)),
	}
}

type ApplyOutcomeResult struct {
	Order  *domain.Order
	Result domain.OutcomeResult
}

type ApplyOutcomeHandler struct {
	repo    ports.OrderRepository
	events  ports.EventBus
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewApplyOutcomeHandler(
	repo ports.OrderRepository,
	events ports.EventBus,
	logger *slog.Logger,
	metrics *metrics.Metrics,
) *ApplyOutcomeHandler {
	return &ApplyOutcomeHandler{
		repo:    repo,
		events:  events,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (h *ApplyOutcomeHandler) Handle(ctx context.Context, cmd ApplyOutcomeCommand) (ApplyOutcomeResult, error) {
	if err := cmd.Validate(); err != nil {
		return ApplyOutcomeResult{}, err
	}

	outcome := domain.Outcome{
		ExternalID:        cmd.ExternalID,
		Status:            cmd.Status,
		ProviderReference: cmd.ProviderReference,
		Reason:            cmd.Reason,
	}

	var result domain.OutcomeResult
	order, err := updateOrder(ctx, h.repo, h.metrics, "ApplyOutcome", byExternalID(h.repo, cmd.ExternalID),
		func(order *domain.Order) (bool, error) {
			var err error
			result, err = order.ApplyOutcome(outcome, h.now())
			return result.Changed(), err
		})
	if err != nil {
		if errors.Is(err, domain.ErrSettlementConflict) {
			h.metrics.RecordPaymentOutcome(ctx, string(cmd.Source), "conflict")
		}
		return ApplyOutcomeResult{Order: order}, err
	}

	h.metrics.RecordPaymentOutcome(ctx, string(cmd.Source), string(result))

	switch result {
	case domain.OutcomeSettled:
		h.logger.InfoContext(ctx, "order paid",
			"order_id", order.ID,
			"external_id", cmd.ExternalID,
			"provider_reference", cmd.ProviderReference,
			"source", cmd.Source,
		)
		if err := h.events.PublishPaymentSettled(ctx, *order); err != nil {
			h.logger.WarnContext(ctx, "failed to publish payment settled event", "order_id", order.ID, "error", err)
		}
	case domain.OutcomeOrderFailed:
		h.logger.InfoContext(ctx, "order payment failed",
			"order_id", order.ID,
			"external_id", cmd.ExternalID,
			"reason", cmd.Reason,
			"source", cmd.Source,
		)
		if err := h.events.PublishPaymentFailed(ctx, *order, cmd.Reason); err != nil {
			h.logger.WarnContext(ctx, "failed to publish payment failed event", "order_id", order.ID, "error", err)
		}
	case domain.OutcomeAlreadySettled:
		if cmd.Status == domain.TransactionSuccessful && order.SettledTransactionRef != cmd.ExternalID {
			h.logger.WarnContext(ctx, "second successful payment on a settled order, refund may be needed",
				"order_id", order.ID,
				"settled_transaction", order.SettledTransactionRef,
				"external_id", cmd.ExternalID,
				"provider_reference", cmd.ProviderReference,
			)
		}
	}

	return ApplyOutcomeResult{Order: order, Result: result}, nil
}
