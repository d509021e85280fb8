package ports

import (
	"context"
	"errors"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/shopspring/decimal"
)

// ErrGatewayUnavailable means the provider did not accept a request. The
// order and transaction are already persisted when this surfaces.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// PaymentRequest asks the provider to collect money from a payer.
type PaymentRequest struct {
	ExternalID   string
	Amount       decimal.Decimal
	Currency     string
	PayerHandle  string
	CallbackURL  string
	PayerMessage string
	PayeeNote    string
}

// PaymentStatusReport is the provider's view of one request.
type PaymentStatusReport struct {
	Status            domain.TransactionStatus
	ProviderReference string
	Reason            string
}

// PaymentGateway is an asynchronous request-to-pay provider. RequestToPay only
// confirms acceptance; the outcome arrives later through a callback or
// PollStatus.
type PaymentGateway interface {
	RequestToPay(ctx context.Context, req PaymentRequest) error
	PollStatus(ctx context.Context, externalID string) (PaymentStatusReport, error)
}

// StatusRecheck schedules a later status poll for a payment attempt.
type StatusRecheck interface {
	Schedule(externalID string)
}
