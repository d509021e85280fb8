package ports

import (
	"context"
	"errors"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
)

// OrderRepository exposes persistence operations required by the application layer.
//
// Create stores a new order at version 1.
// Update is a compare-and-swap: it succeeds only while the stored version still
// equals order.Version, and on success bumps order.Version. Every payment-state
// mutation goes through it, so a callback and a poll racing on the same order
// cannot overwrite each other.
type OrderRepository interface {
	Create(ctx context.Context, order domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)
	Update(ctx context.Context, order *domain.Order) error
	ListPendingTransactions(ctx context.Context, createdBefore time.Time, limit int) ([]PendingTransaction, error)
}

// ListFilter narrows list queries by customer, payment status and pagination.
type ListFilter struct {
	CustomerID    string
	PaymentStatus *domain.PaymentStatus
	Page          int
	PageSize      int
}

// PendingTransaction identifies an unresolved payment attempt.
type PendingTransaction struct {
	OrderID    string
	ExternalID string
	CreatedAt  time.Time
}

var (
	// ErrNotFound is returned when the requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrVersionConflict is returned when an order changed since it was read.
	ErrVersionConflict = errors.New("order was modified concurrently")
)
