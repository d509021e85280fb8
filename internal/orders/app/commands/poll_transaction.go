package commands

import (
	"context"
	"strings"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type PollTransactionCommand struct {
	ExternalID string
}

func (c PollTransactionCommand) SpanAttributes() []attribute.KeyValue {
	return []attribute.KeyValue{telemetry.ExternalIDKey.String(c.ExternalID)}
}

// PollResult reports what the provider said and what, if anything, changed.
// Result is empty when the provider still reports the request as pending or
// when the attempt no longer needed a check.
type PollResult struct {
	Order          *domain.Order
	ProviderStatus domain.TransactionStatus
	Result         domain.OutcomeResult
	Skipped        bool
}

// PollTransactionHandler asks the provider for the status of one attempt and
// feeds a terminal answer into the outcome handler. The gateway bounds the
// call with its poll timeout; nothing here retries.
type PollTransactionHandler struct {
	repo     ports.OrderRepository
	gateway  ports.PaymentGateway
	outcomes Handler[ApplyOutcomeCommand, ApplyOutcomeResult]
}

func NewPollTransactionHandler(
	repo ports.OrderRepository,
	gateway ports.PaymentGateway,
	outcomes Handler[ApplyOutcomeCommand, ApplyOutcomeResult],
) *PollTransactionHandler {
	return &PollTransactionHandler{
		repo:     repo,
		gateway:  gateway,
		outcomes: outcomes,
	}
}

func (h *PollTransactionHandler) Handle(ctx context.Context, cmd PollTransactionCommand) (PollResult, error) {
	if strings.TrimSpace(cmd.ExternalID) == "" {
		return PollResult{}, domain.ErrUnknownTransaction
	}

	order, err := byExternalID(h.repo, cmd.ExternalID)(ctx)
	if err != nil {
		return PollResult{}, err
	}
	tx, ok := order.Transaction(cmd.ExternalID)
	if !ok {
		return PollResult{Order: order}, domain.ErrUnknownTransaction
	}
	if order.IsPaid() || tx.IsTerminal() {
		return PollResult{Order: order, ProviderStatus: tx.Status, Skipped: true}, nil
	}

	report, err := h.gateway.PollStatus(ctx, cmd.ExternalID)
	if err != nil {
		return PollResult{Order: order}, err
	}
	if !report.Status.IsTerminal() {
		return PollResult{Order: order, ProviderStatus: report.Status}, nil
	}

	res, err := h.outcomes.Handle(ctx, ApplyOutcomeCommand{
		ExternalID:        cmd.ExternalID,
		Status:            report.Status,
		ProviderReference: report.ProviderReference,
		Reason:            report.Reason,
		Source:            SourcePoll,
	})
	if err != nil {
		return PollResult{Order: order, ProviderStatus: report.Status}, err
	}
	return PollResult{Order: res.Order, ProviderStatus: report.Status, Result: res.Result}, nil
}
