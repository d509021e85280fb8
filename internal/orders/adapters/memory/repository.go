package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// Repository provides an in-memory store useful for local development and tests.
// It keeps the same compare-and-swap semantics as the postgres store.
type Repository struct {
	mu         sync.RWMutex
	orders     map[string]domain.Order
	byExternal map[string]string
}

// NewRepository constructs a new in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		orders:     make(map[string]domain.Order),
		byExternal: make(map[string]string),
	}
}

// Create stores a new order at version 1.
func (r *Repository) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; ok {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	if err := r.claimExternalIDs(order); err != nil {
		return err
	}

	stored := order.Clone()
	stored.Version = 1
	r.orders[order.ID] = stored
	return nil
}

// GetByID fetches a single order by identifier.
func (r *Repository) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	copy := order.Clone()
	return &copy, nil
}

// GetByExternalID finds the order owning a payment attempt.
func (r *Repository) GetByExternalID(ctx context.Context, externalID string) (*domain.Order, error) {
	r.mu.RLock()
	id, ok := r.byExternal[externalID]
	r.mu.RUnlock()
	if !ok {
		return nil, ports.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// List returns orders respecting the provided filter, newest first. Pagination is 1-based.
func (r *Repository) List(_ context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Order
	for _, order := range r.orders {
		if filter.CustomerID != "" && order.CustomerID != filter.CustomerID {
			continue
		}
		if filter.PaymentStatus != nil && order.PaymentStatus != *filter.PaymentStatus {
			continue
		}
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	start := (page - 1) * pageSize
	if start >= len(result) {
		return []domain.Order{}, nil
	}

	end := start + pageSize
	if end > len(result) {
		end = len(result)
	}

	slice := make([]domain.Order, 0, end-start)
	for _, order := range result[start:end] {
		slice = append(slice, order.Clone())
	}

	return slice, nil
}

// Update replaces the stored order if its version still matches and bumps the
// version on both copies.
func (r *Repository) Update(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[order.ID]
	if !ok {
		return ports.ErrNotFound
	}
	if current.Version != order.Version {
		return ports.ErrVersionConflict
	}
	if err := r.claimExternalIDs(*order); err != nil {
		return err
	}

	order.Version++
	r.orders[order.ID] = order.Clone()
	return nil
}

// ListPendingTransactions returns unresolved attempts on pending orders,
// oldest first.
func (r *Repository) ListPendingTransactions(_ context.Context, createdBefore time.Time, limit int) ([]ports.PendingTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pending []ports.PendingTransaction
	for _, order := range r.orders {
		if order.PaymentStatus != domain.PaymentPending {
			continue
		}
		for _, tx := range order.Transactions {
			if tx.Status == domain.TransactionPending && tx.CreatedAt.Before(createdBefore) {
				pending = append(pending, ports.PendingTransaction{
					OrderID:    order.ID,
					ExternalID: tx.ExternalID,
					CreatedAt:  tx.CreatedAt,
				})
			}
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// claimExternalIDs indexes the order's attempts. Caller holds the write lock.
func (r *Repository) claimExternalIDs(order domain.Order) error {
	for _, tx := range order.Transactions {
		if owner, ok := r.byExternal[tx.ExternalID]; ok && owner != order.ID {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateExternalID, tx.ExternalID)
		}
	}
	for _, tx := range order.Transactions {
		r.byExternal[tx.ExternalID] = order.ID
	}
	return nil
}
