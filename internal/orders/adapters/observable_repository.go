package adapters

import (
	"context"
	"errors"
	"time"

	"github.com/dejobratic/storefront/internal/database"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// ObservableRepository wraps an OrderRepository with a span and a query
// duration sample per call.
type ObservableRepository struct {
	repo    ports.OrderRepository
	metrics *database.Metrics
}

func NewObservableRepository(repo ports.OrderRepository, metrics *database.Metrics) *ObservableRepository {
	return &ObservableRepository{
		repo:    repo,
		metrics: metrics,
	}
}

func (r *ObservableRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.Create")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		telemetry.OrderIDKey.String(order.ID),
		attribute.String("operation", "create"),
	)

	start := time.Now()
	err := r.repo.Create(ctx, order)
	r.metrics.RecordQuery(ctx, "create_order", time.Since(start).Seconds(), queryOutcome(err))

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

func (r *ObservableRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.GetByID")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		telemetry.OrderIDKey.String(id),
		attribute.String("operation", "get_by_id"),
	)

	start := time.Now()
	order, err := r.repo.GetByID(ctx, id)
	r.metrics.RecordQuery(ctx, "get_order_by_id", time.Since(start).Seconds(), queryOutcome(err))

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	telemetry.SetSpanSuccess(span)
	return order, nil
}

func (r *ObservableRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.GetByExternalID")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		telemetry.ExternalIDKey.String(externalID),
		attribute.String("operation", "get_by_external_id"),
	)

	start := time.Now()
	order, err := r.repo.GetByExternalID(ctx, externalID)
	r.metrics.RecordQuery(ctx, "get_order_by_external_id", time.Since(start).Seconds(), queryOutcome(err))

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	telemetry.AddSpanAttributes(span, telemetry.OrderIDKey.String(order.ID))
	telemetry.SetSpanSuccess(span)
	return order, nil
}

func (r *ObservableRepository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.List")
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String("operation", "list"),
		attribute.Int("page", filter.Page),
		attribute.Int("page_size", filter.PageSize),
	}
	if filter.CustomerID != "" {
		attrs = append(attrs, attribute.String("filter.customer_id", filter.CustomerID))
	}
	if filter.PaymentStatus != nil {
		attrs = append(attrs, attribute.String("filter.payment_status", string(*filter.PaymentStatus)))
	}
	telemetry.AddSpanAttributes(span, attrs...)

	start := time.Now()
	orders, err := r.repo.List(ctx, filter)
	r.metrics.RecordQuery(ctx, "list_orders", time.Since(start).Seconds(), queryOutcome(err))

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	telemetry.AddSpanAttributes(span, attribute.Int("result.count", len(orders)))
	telemetry.SetSpanSuccess(span)
	return orders, nil
}

func (r *ObservableRepository) Update(ctx context.Context, order *domain.Order) error {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.Update")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		telemetry.OrderIDKey.String(order.ID),
		attribute.Int64("order.version", order.Version),
		attribute.String("order.payment_status", string(order.PaymentStatus)),
		attribute.String("operation", "update"),
	)

	start := time.Now()
	err := r.repo.Update(ctx, order)
	r.metrics.RecordQuery(ctx, "update_order", time.Since(start).Seconds(), queryOutcome(err))

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

func (r *ObservableRepository) ListPendingTransactions(ctx context.Context, createdBefore time.Time, limit int) ([]ports.PendingTransaction, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.ListPendingTransactions")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("operation", "list_pending_transactions"),
		attribute.Int("limit", limit),
	)

	start := time.Now()
	pending, err := r.repo.ListPendingTransactions(ctx, createdBefore, limit)
	r.metrics.RecordQuery(ctx, "list_pending_transactions", time.Since(start).Seconds(), queryOutcome(err))

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	telemetry.AddSpanAttributes(span, attribute.Int("result.count", len(pending)))
	telemetry.SetSpanSuccess(span)
	return pending, nil
}

func queryOutcome(err error) string {
	switch {
	case err == nil:
		return database.OutcomeOK
	case errors.Is(err, ports.ErrNotFound):
		return database.OutcomeNotFound
	case errors.Is(err, ports.ErrVersionConflict), errors.Is(err, domain.ErrDuplicateExternalID):
		return database.OutcomeConflict
	default:
		return database.OutcomeError
	}
}
