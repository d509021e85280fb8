package queries

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// GetOrderQuery represents a request to retrieve an order by its ID.
type GetOrderQuery struct {
	OrderID string
}

// Validate ensures the query has valid parameters.
func (q GetOrderQuery) Validate() error {
	if strings.TrimSpace(q.OrderID) == "" {
		return domain.ErrMissingOrderID
	}
	return nil
}

// GetOrderQueryHandler loads an order and, when its latest payment attempt is
// still pending, asks the provider for news first. A failed poll is logged and
// the stored state is returned.
type GetOrderQueryHandler struct {
	repo   ports.OrderRepository
	poller commands.Handler[commands.PollTransactionCommand, commands.PollResult]
	logger *slog.Logger
}

// NewGetOrderQueryHandler constructs a GetOrderQueryHandler.
func NewGetOrderQueryHandler(
	repo ports.OrderRepository,
	poller commands.Handler[commands.PollTransactionCommand, commands.PollResult],
	logger *slog.Logger,
) *GetOrderQueryHandler {
	return &GetOrderQueryHandler{repo: repo, poller: poller, logger: logger}
}

// Handle executes the query and retrieves the order.
func (h *GetOrderQueryHandler) Handle(ctx context.Context, query GetOrderQuery) (*domain.Order, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	order, err := h.repo.GetByID(ctx, query.OrderID)
	if err != nil {
		return nil, err
	}
	if !order.NeedsStatusCheck() {
		return order, nil
	}

	latest, _ := order.LatestTransaction()
	res, err := h.poller.Handle(ctx, commands.PollTransactionCommand{ExternalID: latest.ExternalID})
	if err != nil {
		h.logger.WarnContext(ctx, "status check on order view failed",
			"order_id", order.ID,
			"external_id", latest.ExternalID,
			"error", err,
		)
		return order, nil
	}
	if res.Order != nil && res.Result.Changed() {
		return res.Order, nil
	}
	return order, nil
}
