package domain

import (
	"fmt"
	"time"
)

// OutcomeResult describes what applying a provider outcome did to an order.
type OutcomeResult string

const (
	// OutcomeSettled means the order moved to paid.
	OutcomeSettled OutcomeResult = "settled"
	// OutcomeOrderFailed means the attempt failed and no live sibling remains.
	OutcomeOrderFailed OutcomeResult = "order_failed"
	// OutcomeAttemptFailed means the attempt failed but a sibling is still live.
	OutcomeAttemptFailed OutcomeResult = "attempt_failed"
	// OutcomeAlreadySettled means the order was paid before this outcome arrived.
	OutcomeAlreadySettled OutcomeResult = "already_settled"
	// OutcomeDuplicate means the transaction already carried this outcome.
	OutcomeDuplicate OutcomeResult = "duplicate"
)

// Changed reports whether the order needs to be persisted.
func (r OutcomeResult) Changed() bool {
	switch r {
	case OutcomeSettled, OutcomeOrderFailed, OutcomeAttemptFailed:
		return true
	default:
		return false
	}
}

// Outcome is a terminal provider verdict for one transaction.
type Outcome struct {
	ExternalID        string
	Status            TransactionStatus
	ProviderReference string
	Reason            string
}

// ApplyOutcome resolves one transaction. It is idempotent: replaying the same
// outcome, or any outcome after the order settled, leaves the order unchanged.
// A contradicting outcome for an already resolved transaction returns
// ErrSettlementConflict and keeps the first value.
func (o *Order) ApplyOutcome(outcome Outcome, now time.Time) (OutcomeResult, error) {
	if !outcome.Status.IsTerminal() {
		return "", fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome.Status)
	}

	idx := o.transactionIndex(outcome.ExternalID)
	if idx < 0 {
		return "", fmt.Errorf("%w: %s", ErrUnknownTransaction, outcome.ExternalID)
	}

	if o.IsPaid() {
		return OutcomeAlreadySettled, nil
	}

	tx := &o.Transactions[idx]
	if tx.IsTerminal() {
		if tx.Status == outcome.Status {
			return OutcomeDuplicate, nil
		}
		return "", fmt.Errorf("%w: transaction %s is %s, received %s",
			ErrSettlementConflict, tx.ExternalID, tx.Status, outcome.Status)
	}

	resolvedAt := now
	tx.Status = outcome.Status
	tx.ResolvedAt = &resolvedAt
	o.UpdatedAt = now

	if outcome.Status == TransactionSuccessful {
		o.PaymentStatus = PaymentPaid
		o.SettledTransactionRef = tx.ExternalID
		o.ProviderReference = outcome.ProviderReference
		return OutcomeSettled, nil
	}

	tx.FailureReason = outcome.Reason
	if o.hasLiveSibling(tx.ExternalID) {
		return OutcomeAttemptFailed, nil
	}
	o.PaymentStatus = PaymentFailed
	return OutcomeOrderFailed, nil
}
