package queries

import (
	"context"
	"fmt"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

const maxPageSize = 100

// ListOrdersQuery filters orders for account and admin views.
type ListOrdersQuery struct {
	CustomerID    string
	PaymentStatus string
	Page          int
	PageSize      int
}

func (q ListOrdersQuery) filter() (ports.ListFilter, error) {
	filter := ports.ListFilter{
		CustomerID: q.CustomerID,
		Page:       q.Page,
		PageSize:   q.PageSize,
	}
	if filter.Page < 0 || filter.PageSize < 0 {
		return ports.ListFilter{}, fmt.Errorf("%w: page and page_size must not be negative", ErrInvalidQuery)
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}

	if q.PaymentStatus != "" {
		status := domain.PaymentStatus(q.PaymentStatus)
		switch status {
		case domain.PaymentUnpaid, domain.PaymentPending, domain.PaymentPaid, domain.PaymentFailed:
			filter.PaymentStatus = &status
		default:
			return ports.ListFilter{}, fmt.Errorf("%w: unknown payment_status %q", ErrInvalidQuery, q.PaymentStatus)
		}
	}
	return filter, nil
}

type ListOrdersQueryHandler struct {
	repo ports.OrderRepository
}

func NewListOrdersQueryHandler(repo ports.OrderRepository) *ListOrdersQueryHandler {
	return &ListOrdersQueryHandler{repo: repo}
}

// Handle lists stored state only; it never polls the provider.
func (h *ListOrdersQueryHandler) Handle(ctx context.Context, query ListOrdersQuery) ([]domain.Order, error) {
	filter, err := query.filter()
	if err != nil {
		return nil, err
	}
	return h.repo.List(ctx, filter)
}
