package commands_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/dejobratic/storefront/internal/orders/adapters/memory"
	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric/noop"
)

type mockGateway struct {
	mu             sync.Mutex
	requests       []ports.PaymentRequest
	polls          []string
	requestToPayFn func(ctx context.Context, req ports.PaymentRequest) error
	pollStatusFn   func(ctx context.Context, externalID string) (ports.PaymentStatusReport, error)
}

func (m *mockGateway) RequestToPay(ctx context.Context, req ports.PaymentRequest) error {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.requestToPayFn != nil {
		return m.requestToPayFn(ctx, req)
	}
	return nil
}

func (m *mockGateway) PollStatus(ctx context.Context, externalID string) (ports.PaymentStatusReport, error) {
	m.mu.Lock()
	m.polls = append(m.polls, externalID)
	m.mu.Unlock()
	if m.pollStatusFn != nil {
		return m.pollStatusFn(ctx, externalID)
	}
	return ports.PaymentStatusReport{Status: domain.TransactionPending}, nil
}

func (m *mockGateway) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type mockEventBus struct {
	mu      sync.Mutex
	placed  []string
	settled []string
	failed  []string
	err     error
}

func (m *mockEventBus) PublishOrderPlaced(_ context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placed = append(m.placed, order.ID)
	return m.err
}

func (m *mockEventBus) PublishPaymentSettled(_ context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settled = append(m.settled, order.ID)
	return m.err
}

func (m *mockEventBus) PublishPaymentFailed(_ context.Context, order domain.Order, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, order.ID)
	return m.err
}

type recordingRecheck struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingRecheck) Schedule(externalID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, externalID)
}

// conflictingRepository fails the first n updates with a version conflict.
type conflictingRepository struct {
	*memory.Repository
	mu        sync.Mutex
	conflicts int
	updates   int
}

func (r *conflictingRepository) Update(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	r.updates++
	if r.conflicts > 0 {
		r.conflicts--
		r.mu.Unlock()
		return ports.ErrVersionConflict
	}
	r.mu.Unlock()
	return r.Repository.Update(ctx, order)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics(t *testing.T) *metrics.Metrics {
	t.Helper()
	m, err := metrics.NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}
	return m
}

type fixture struct {
	repo     ports.OrderRepository
	gateway  *mockGateway
	events   *mockEventBus
	recheck  *recordingRecheck
	outcomes *commands.ApplyOutcomeHandler
	place    *commands.PlaceOrderHandler
	retry    *commands.RetryPaymentHandler
	poll     *commands.PollTransactionHandler
}

func newFixture(t *testing.T, repo ports.OrderRepository) *fixture {
	t.Helper()
	if repo == nil {
		repo = memory.NewRepository()
	}
	f := &fixture{
		repo:    repo,
		gateway: &mockGateway{},
		events:  &mockEventBus{},
		recheck: &recordingRecheck{},
	}

	logger, m := discardLogger(), newTestMetrics(t)
	settings := commands.PaymentSettings{Currency: "UGX", CallbackURL: "https://shop.example/payment-callback"}

	f.outcomes = commands.NewApplyOutcomeHandler(repo, f.events, logger, m)
	f.place = commands.NewPlaceOrderHandler(repo, f.events, f.gateway, f.recheck, f.outcomes, domain.DefaultCheckoutPolicy(), settings, logger, m)
	f.retry = commands.NewRetryPaymentHandler(repo, f.gateway, f.recheck, f.outcomes, settings, logger, m)
	f.poll = commands.NewPollTransactionHandler(repo, f.gateway, f.outcomes)
	return f
}

func checkoutCommand(method domain.PaymentMethod) commands.PlaceOrderCommand {
	cmd := commands.PlaceOrderCommand{
		CustomerID: "customer-1",
		Items: []domain.LineItem{
			{ProductRef: "p-1", Name: "Kitenge dress", VariantLabel: "M", UnitPrice: decimal.NewFromInt(20000), Quantity: 2},
			{ProductRef: "p-2", Name: "Sandals", UnitPrice: decimal.NewFromInt(5000), Quantity: 1},
		},
		DeliveryFee:     decimal.NewFromInt(5000),
		DeliveryAddress: domain.DeliveryAddress{District: "Kampala", Village: "Ntinda"},
		PaymentMethod:   method,
	}
	if method == domain.PaymentPrepaid {
		cmd.PayerHandle = "0771234567"
	}
	return cmd
}

func placePrepaid(t *testing.T, f *fixture) *domain.Order {
	t.Helper()
	order, err := f.place.Handle(context.Background(), checkoutCommand(domain.PaymentPrepaid))
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	return order
}
