package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

const maxUpdateAttempts = 5

// mutation changes a freshly loaded order in place. It reports whether the
// order needs writing back.
type mutation func(order *domain.Order) (changed bool, err error)

// updateOrder loads, mutates and conditionally writes an order, re-applying
// the mutation on a fresh copy whenever another writer got there first.
func updateOrder(
	ctx context.Context,
	repo ports.OrderRepository,
	m *metrics.Metrics,
	command string,
	load func(ctx context.Context) (*domain.Order, error),
	mutate mutation,
) (*domain.Order, error) {
	for attempt := 1; ; attempt++ {
		order, err := load(ctx)
		if err != nil {
			return nil, err
		}

		changed, err := mutate(order)
		if err != nil {
			return order, err
		}
		if !changed {
			return order, nil
		}

		err = repo.Update(ctx, order)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, ports.ErrVersionConflict) {
			return nil, err
		}

		m.RecordVersionConflict(ctx, command)
		if attempt == maxUpdateAttempts {
			return nil, fmt.Errorf("%w: gave up after %d attempts", err, attempt)
		}
	}
}

func byID(repo ports.OrderRepository, id string) func(context.Context) (*domain.Order, error) {
	return func(ctx context.Context) (*domain.Order, error) {
		return repo.GetByID(ctx, id)
	}
}

func byExternalID(repo ports.OrderRepository, externalID string) func(context.Context) (*domain.Order, error) {
	return func(ctx context.Context) (*domain.Order, error) {
		order, err := repo.GetByExternalID(ctx, externalID)
		if errors.Is(err, ports.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTransaction, externalID)
		}
		return order, err
	}
}
