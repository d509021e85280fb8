package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dejobratic/storefront/internal/orders/adapters/memory"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPending(t *testing.T, repo *memory.Repository, id, externalID string, at time.Time) {
	t.Helper()
	order, err := domain.NewOrder(domain.NewOrderParams{
		ID:              id,
		CustomerID:      "customer-1",
		Items:           []domain.LineItem{{ProductRef: "p-1", Name: "Mat", UnitPrice: decimal.NewFromInt(15000), Quantity: 1}},
		Currency:        "UGX",
		PaymentMethod:   domain.PaymentPrepaid,
		PayerHandle:     "0781234567",
		DeliveryAddress: domain.DeliveryAddress{District: "Mukono"},
	}, at)
	require.NoError(t, err)
	_, err = order.StartAttempt(externalID, at)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), order))
}

func TestSweepOnce(t *testing.T) {
	repo := memory.NewRepository()
	now := time.Now().UTC()
	seedPending(t, repo, "order-1", "ext-old-1", now.Add(-2*time.Hour))
	seedPending(t, repo, "order-2", "ext-old-2", now.Add(-time.Hour))
	seedPending(t, repo, "order-3", "ext-fresh", now)

	var mu sync.Mutex
	var polled []string
	poll := func(_ context.Context, externalID string) error {
		mu.Lock()
		defer mu.Unlock()
		polled = append(polled, externalID)
		if externalID == "ext-old-2" {
			return errors.New("timeout")
		}
		return nil
	}

	sweeper := NewSweeper(repo, poll, SweeperConfig{MinAge: 10 * time.Minute, Concurrency: 2}, discardLogger())
	stats, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SweepStats{Checked: 2, Failed: 1}, stats)
	sort.Strings(polled)
	assert.Equal(t, []string{"ext-old-1", "ext-old-2"}, polled)

	order, err := repo.GetByID(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, order.PaymentStatus, "sweeping never fails an attempt by itself")
}

func TestSweepRespectsBatchSize(t *testing.T) {
	repo := memory.NewRepository()
	now := time.Now().UTC()
	seedPending(t, repo, "order-1", "ext-1", now.Add(-3*time.Hour))
	seedPending(t, repo, "order-2", "ext-2", now.Add(-2*time.Hour))
	seedPending(t, repo, "order-3", "ext-3", now.Add(-time.Hour))

	var mu sync.Mutex
	var polled []string
	sweeper := NewSweeper(repo, func(_ context.Context, id string) error {
		mu.Lock()
		polled = append(polled, id)
		mu.Unlock()
		return nil
	}, SweeperConfig{MinAge: time.Minute, BatchSize: 2, Concurrency: 1}, discardLogger())

	stats, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Checked)
	assert.Equal(t, []string{"ext-1", "ext-2"}, polled)
}
