package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus tracks a single payment attempt.
type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "pending"
	TransactionSuccessful TransactionStatus = "successful"
	TransactionFailed     TransactionStatus = "failed"
)

// IsTerminal reports whether the status can no longer change.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionSuccessful || s == TransactionFailed
}

// Transaction is one request-to-pay attempt against the payment provider.
// ExternalID doubles as the provider's idempotency key, so every attempt gets
// a fresh one.
type Transaction struct {
	ExternalID    string            `json:"external_id"`
	Status        TransactionStatus `json:"status"`
	Amount        decimal.Decimal   `json:"amount"`
	PayerHandle   string            `json:"payer_handle"`
	FailureReason string            `json:"failure_reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	ResolvedAt    *time.Time        `json:"resolved_at,omitempty"`
}

// IsTerminal indicates whether the attempt has been resolved.
func (t Transaction) IsTerminal() bool {
	return t.Status.IsTerminal()
}

func (t Transaction) isLive() bool {
	return t.Status == TransactionPending || t.Status == TransactionSuccessful
}
