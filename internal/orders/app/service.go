package app

import (
	"context"
	"log/slog"

	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/app/queries"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// Dependencies are the collaborators the order use cases need.
type Dependencies struct {
	Repo     ports.OrderRepository
	Events   ports.EventBus
	Gateway  ports.PaymentGateway
	Recheck  ports.StatusRecheck
	Idem     ports.IdempotencyStore
	Policy   domain.CheckoutPolicy
	Settings commands.PaymentSettings
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Service bundles use cases for handling orders via the API.
type Service struct {
	idemStore ports.IdempotencyStore

	placeOrder        commands.Handler[commands.PlaceOrderCommand, *domain.Order]
	retryPayment      commands.Handler[commands.RetryPaymentCommand, commands.RetryPaymentResult]
	applyOutcome      commands.Handler[commands.ApplyOutcomeCommand, commands.ApplyOutcomeResult]
	pollTransaction   commands.Handler[commands.PollTransactionCommand, commands.PollResult]
	updateFulfillment commands.Handler[commands.UpdateFulfillmentCommand, *domain.Order]

	getOrder   *queries.GetOrderQueryHandler
	listOrders *queries.ListOrdersQueryHandler
}

// NewService wires required dependencies. Every command handler is wrapped
// for tracing, metrics and failure logging.
func NewService(deps Dependencies) *Service {
	logger, m := deps.Logger, deps.Metrics

	applyOutcome := commands.NewObservableHandler[commands.ApplyOutcomeCommand, commands.ApplyOutcomeResult](
		"ApplyOutcome",
		commands.NewApplyOutcomeHandler(deps.Repo, deps.Events, logger, m),
		logger, m,
	)
	pollTransaction := commands.NewObservableHandler[commands.PollTransactionCommand, commands.PollResult](
		"PollTransaction",
		commands.NewPollTransactionHandler(deps.Repo, deps.Gateway, applyOutcome),
		logger, m,
	)
	placeOrder := commands.NewObservableHandler[commands.PlaceOrderCommand, *domain.Order](
		"PlaceOrder",
		commands.NewPlaceOrderHandler(deps.Repo, deps.Events, deps.Gateway, deps.Recheck, applyOutcome, deps.Policy, deps.Settings, logger, m),
		logger, m,
	)
	retryPayment := commands.NewObservableHandler[commands.RetryPaymentCommand, commands.RetryPaymentResult](
		"RetryPayment",
		commands.NewRetryPaymentHandler(deps.Repo, deps.Gateway, deps.Recheck, applyOutcome, deps.Settings, logger, m),
		logger, m,
	)
	updateFulfillment := commands.NewObservableHandler[commands.UpdateFulfillmentCommand, *domain.Order](
		"UpdateFulfillment",
		commands.NewUpdateFulfillmentHandler(deps.Repo, logger, m),
		logger, m,
	)

	return &Service{
		idemStore:         deps.Idem,
		placeOrder:        placeOrder,
		retryPayment:      retryPayment,
		applyOutcome:      applyOutcome,
		pollTransaction:   pollTransaction,
		updateFulfillment: updateFulfillment,
		getOrder:          queries.NewGetOrderQueryHandler(deps.Repo, pollTransaction, logger),
		listOrders:        queries.NewListOrdersQueryHandler(deps.Repo),
	}
}

// PlaceOrder submits a checkout.
func (s *Service) PlaceOrder(ctx context.Context, cmd commands.PlaceOrderCommand) (*domain.Order, error) {
	return s.placeOrder.Handle(ctx, cmd)
}

// RetryPayment starts a fresh payment attempt for an unpaid prepaid order.
func (s *Service) RetryPayment(ctx context.Context, orderID string) (commands.RetryPaymentResult, error) {
	return s.retryPayment.Handle(ctx, commands.RetryPaymentCommand{OrderID: orderID})
}

// ApplyOutcome records a provider verdict for one payment attempt.
func (s *Service) ApplyOutcome(ctx context.Context, cmd commands.ApplyOutcomeCommand) (commands.ApplyOutcomeResult, error) {
	return s.applyOutcome.Handle(ctx, cmd)
}

// PollTransaction asks the provider about one payment attempt.
func (s *Service) PollTransaction(ctx context.Context, externalID string) (commands.PollResult, error) {
	return s.pollTransaction.Handle(ctx, commands.PollTransactionCommand{ExternalID: externalID})
}

// Poll adapts PollTransaction to the reconcile workers.
func (s *Service) Poll(ctx context.Context, externalID string) error {
	_, err := s.PollTransaction(ctx, externalID)
	return err
}

// UpdateFulfillment moves an order through shipping states.
func (s *Service) UpdateFulfillment(ctx context.Context, orderID string, status domain.FulfillmentStatus) (*domain.Order, error) {
	return s.updateFulfillment.Handle(ctx, commands.UpdateFulfillmentCommand{OrderID: orderID, Status: status})
}

// GetOrder retrieves an order by ID, checking an outstanding payment first.
func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.getOrder.Handle(ctx, queries.GetOrderQuery{OrderID: id})
}

// ListOrders returns orders using a filter.
func (s *Service) ListOrders(ctx context.Context, query queries.ListOrdersQuery) ([]domain.Order, error) {
	return s.listOrders.Handle(ctx, query)
}

// ReserveIdempotencyKey claims key for a checkout about to run.
func (s *Service) ReserveIdempotencyKey(ctx context.Context, key string) (bool, error) {
	return s.idemStore.Reserve(ctx, key)
}

// ReleaseIdempotencyKey frees a key whose checkout produced no stored response.
func (s *Service) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return s.idemStore.Release(ctx, key)
}

// SaveIdempotentResponse writes response details for a key.
func (s *Service) SaveIdempotentResponse(ctx context.Context, key string, response ports.StoredResponse) error {
	return s.idemStore.Save(ctx, key, response)
}

// GetIdempotentResponse retrieves previously stored response data.
func (s *Service) GetIdempotentResponse(ctx context.Context, key string) (*ports.StoredResponse, error) {
	return s.idemStore.Get(ctx, key)
}
