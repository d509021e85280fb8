package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/dejobratic/storefront/internal/orders/adapters/memory"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(t *testing.T, id, customer string, method domain.PaymentMethod, createdAt time.Time) domain.Order {
	t.Helper()
	order, err := domain.NewOrder(domain.NewOrderParams{
		ID:              id,
		CustomerID:      customer,
		Items:           []domain.LineItem{{ProductRef: "p-1", Name: "Bag", UnitPrice: decimal.NewFromInt(25000), Quantity: 2}},
		Currency:        "UGX",
		PaymentMethod:   method,
		PayerHandle:     "0771234567",
		DeliveryAddress: domain.DeliveryAddress{District: "Kampala"},
	}, createdAt)
	require.NoError(t, err)
	return order
}

func TestRepositoryCompareAndSwap(t *testing.T) {
	repo := memory.NewRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	order := newOrder(t, "order-1", "customer-1", domain.PaymentPrepaid, now)
	_, err := order.StartAttempt("ext-1", now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, order))

	first, err := repo.GetByID(ctx, "order-1")
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Version)

	_, err = first.ApplyOutcome(domain.Outcome{ExternalID: "ext-1", Status: domain.TransactionSuccessful, ProviderReference: "TX1"}, now)
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	_, err = second.ApplyOutcome(domain.Outcome{ExternalID: "ext-1", Status: domain.TransactionFailed}, now)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Update(ctx, second), ports.ErrVersionConflict)

	stored, err := repo.GetByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, stored.PaymentStatus)
}

func TestRepositoryReturnsCopies(t *testing.T) {
	repo := memory.NewRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	order := newOrder(t, "order-1", "customer-1", domain.PaymentPrepaid, now)
	require.NoError(t, repo.Create(ctx, order))

	loaded, err := repo.GetByID(ctx, "order-1")
	require.NoError(t, err)
	_, err = loaded.StartAttempt("ext-1", now)
	require.NoError(t, err)

	again, err := repo.GetByID(ctx, "order-1")
	require.NoError(t, err)
	assert.Empty(t, again.Transactions)

	_, err = repo.GetByExternalID(ctx, "ext-1")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRepositoryRejectsExternalIDReuse(t *testing.T) {
	repo := memory.NewRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	a := newOrder(t, "order-a", "customer-1", domain.PaymentPrepaid, now)
	_, _ = a.StartAttempt("ext-1", now)
	require.NoError(t, repo.Create(ctx, a))

	b := newOrder(t, "order-b", "customer-1", domain.PaymentPrepaid, now)
	_, _ = b.StartAttempt("ext-1", now)
	assert.ErrorIs(t, repo.Create(ctx, b), domain.ErrDuplicateExternalID)
}

func TestRepositoryList(t *testing.T) {
	repo := memory.NewRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, newOrder(t, "order-1", "alice", domain.PaymentCashOnDelivery, now)))
	require.NoError(t, repo.Create(ctx, newOrder(t, "order-2", "bob", domain.PaymentPrepaid, now.Add(time.Second))))
	require.NoError(t, repo.Create(ctx, newOrder(t, "order-3", "alice", domain.PaymentPrepaid, now.Add(2*time.Second))))

	all, err := repo.List(ctx, ports.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "order-3", all[0].ID)

	alice, err := repo.List(ctx, ports.ListFilter{CustomerID: "alice"})
	require.NoError(t, err)
	assert.Len(t, alice, 2)

	pending := domain.PaymentPending
	prepaid, err := repo.List(ctx, ports.ListFilter{PaymentStatus: &pending})
	require.NoError(t, err)
	assert.Len(t, prepaid, 2)

	page2, err := repo.List(ctx, ports.ListFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "order-1", page2[0].ID)
}

func TestRepositoryListPendingTransactions(t *testing.T) {
	repo := memory.NewRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	old := newOrder(t, "order-old", "alice", domain.PaymentPrepaid, now.Add(-time.Hour))
	_, _ = old.StartAttempt("ext-old", now.Add(-time.Hour))
	require.NoError(t, repo.Create(ctx, old))

	fresh := newOrder(t, "order-new", "alice", domain.PaymentPrepaid, now)
	_, _ = fresh.StartAttempt("ext-new", now)
	require.NoError(t, repo.Create(ctx, fresh))

	pending, err := repo.ListPendingTransactions(ctx, now.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ext-old", pending[0].ExternalID)
	assert.Equal(t, "order-old", pending[0].OrderID)
}
