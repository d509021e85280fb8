package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const orderColumns = `
	id, customer_id, items, delivery_fee, total, currency,
	payment_method, payment_status, payer_handle, delivery_address,
	fulfillment_status, transactions, settled_transaction_ref,
	provider_reference, version, created_at, updated_at`

// Repository stores each order as one row. Items, address and transactions
// live in JSONB columns so an order is always read and written whole.
// order_transactions indexes external ids for callback lookups and keeps them
// globally unique.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, order domain.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1, $15, $16)
	`

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query,
			order.ID,
			order.CustomerID,
			order.Items,
			order.DeliveryFee,
			order.Total,
			order.Currency,
			order.PaymentMethod,
			order.PaymentStatus,
			order.PayerHandle,
			order.DeliveryAddress,
			order.FulfillmentStatus,
			transactionsOrEmpty(order.Transactions),
			order.SettledTransactionRef,
			order.ProviderReference,
			order.CreatedAt,
			order.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		return indexTransactions(ctx, tx, order)
	})
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	return order, nil
}

func (r *Repository) GetByExternalID(ctx context.Context, externalID string) (*domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE id = (SELECT order_id FROM order_transactions WHERE external_id = $1)
	`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select order by external id: %w", err)
	}

	return order, nil
}

func (r *Repository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::text IS NULL OR customer_id = $1)
		  AND ($2::text IS NULL OR payment_status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	var customerFilter *string
	if filter.CustomerID != "" {
		customerFilter = &filter.CustomerID
	}
	var statusFilter *string
	if filter.PaymentStatus != nil {
		s := string(*filter.PaymentStatus)
		statusFilter = &s
	}

	offset := (page - 1) * pageSize

	rows, err := r.pool.Query(ctx, query, customerFilter, statusFilter, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	return orders, nil
}

// Update writes the whole order only if the stored version still equals
// order.Version, then bumps order.Version.
func (r *Repository) Update(ctx context.Context, order *domain.Order) error {
	query := `
		UPDATE orders
		SET payment_status = $1,
		    fulfillment_status = $2,
		    transactions = $3,
		    settled_transaction_ref = $4,
		    provider_reference = $5,
		    updated_at = $6,
		    version = version + 1
		WHERE id = $7 AND version = $8
		RETURNING version
	`

	var newVersion int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, query,
			order.PaymentStatus,
			order.FulfillmentStatus,
			transactionsOrEmpty(order.Transactions),
			order.SettledTransactionRef,
			order.ProviderReference,
			order.UpdatedAt,
			order.ID,
			order.Version,
		).Scan(&newVersion)
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missOrConflict(ctx, tx, order.ID)
		}
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		return indexTransactions(ctx, tx, *order)
	})
	if err != nil {
		return err
	}

	order.Version = newVersion
	return nil
}

func (r *Repository) ListPendingTransactions(ctx context.Context, createdBefore time.Time, limit int) ([]ports.PendingTransaction, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ot.order_id, ot.external_id, ot.created_at
		FROM order_transactions ot
		JOIN orders o ON o.id = ot.order_id
		WHERE o.payment_status = 'pending'
		  AND ot.created_at < $1
		  AND o.transactions @> jsonb_build_array(jsonb_build_object('external_id', ot.external_id, 'status', 'pending'))
		ORDER BY ot.created_at
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending transactions: %w", err)
	}
	defer rows.Close()

	var pending []ports.PendingTransaction
	for rows.Next() {
		var p ports.PendingTransaction
		if err := rows.Scan(&p.OrderID, &p.ExternalID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending transaction: %w", err)
		}
		pending = append(pending, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending transactions: %w", err)
	}

	return pending, nil
}

func (r *Repository) missOrConflict(ctx context.Context, tx pgx.Tx, id string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check order existence: %w", err)
	}
	if !exists {
		return ports.ErrNotFound
	}
	return ports.ErrVersionConflict
}

// indexTransactions records external ids not yet indexed for this order. An
// id already owned by another order fails the whole write.
func indexTransactions(ctx context.Context, tx pgx.Tx, order domain.Order) error {
	if len(order.Transactions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range order.Transactions {
		batch.Queue(`
			INSERT INTO order_transactions (external_id, order_id, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (external_id) DO UPDATE SET order_id = EXCLUDED.order_id
			WHERE order_transactions.order_id = EXCLUDED.order_id
		`, t.ExternalID, order.ID, t.CreatedAt)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for _, t := range order.Transactions {
		tag, err := results.Exec()
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("%w: %s", domain.ErrDuplicateExternalID, t.ExternalID)
			}
			return fmt.Errorf("index transaction %s: %w", t.ExternalID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateExternalID, t.ExternalID)
		}
	}

	return nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var order domain.Order
	err := row.Scan(
		&order.ID,
		&order.CustomerID,
		&order.Items,
		&order.DeliveryFee,
		&order.Total,
		&order.Currency,
		&order.PaymentMethod,
		&order.PaymentStatus,
		&order.PayerHandle,
		&order.DeliveryAddress,
		&order.FulfillmentStatus,
		&order.Transactions,
		&order.SettledTransactionRef,
		&order.ProviderReference,
		&order.Version,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func transactionsOrEmpty(txs []domain.Transaction) []domain.Transaction {
	if txs == nil {
		return []domain.Transaction{}
	}
	return txs
}
