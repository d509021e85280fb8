package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store keeps checkout responses in idempotency_keys. A row with status_code 0
// is a reservation. Entries older than the TTL are treated as absent and
// removed by Purge.
type Store struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

func NewStore(pool *pgxpool.Pool, ttl time.Duration) *Store {
	return &Store{pool: pool, ttl: ttl}
}

func (s *Store) Get(ctx context.Context, key string) (*ports.StoredResponse, error) {
	query := `
		SELECT status_code, body, order_id
		FROM idempotency_keys
		WHERE key = $1 AND ($2::timestamptz IS NULL OR created_at > $2)
	`

	var resp ports.StoredResponse
	err := s.pool.QueryRow(ctx, query, key, s.cutoff()).Scan(
		&resp.StatusCode,
		&resp.Body,
		&resp.OrderID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select idempotency key: %w", err)
	}

	return &resp, nil
}

// Reserve inserts an unanswered row for key. An expired row is taken over;
// a live one, reserved or answered, leaves the key taken.
func (s *Store) Reserve(ctx context.Context, key string) (bool, error) {
	query := `
		INSERT INTO idempotency_keys (key, status_code, body, order_id)
		VALUES ($1, 0, ''::bytea, '')
		ON CONFLICT (key) DO UPDATE
		SET status_code = 0, body = ''::bytea, order_id = '', created_at = now()
		WHERE $2::timestamptz IS NOT NULL AND idempotency_keys.created_at <= $2
	`

	tag, err := s.pool.Exec(ctx, query, key, s.cutoff())
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Save answers the key. Rows that already carry a response are left alone.
func (s *Store) Save(ctx context.Context, key string, response ports.StoredResponse) error {
	query := `
		INSERT INTO idempotency_keys (key, status_code, body, order_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET status_code = EXCLUDED.status_code, body = EXCLUDED.body, order_id = EXCLUDED.order_id
		WHERE idempotency_keys.status_code = 0
	`

	_, err := s.pool.Exec(ctx, query, key, response.StatusCode, response.Body, response.OrderID)
	if err != nil {
		return fmt.Errorf("save idempotency key: %w", err)
	}

	return nil
}

// Release deletes the key if it is still unanswered.
func (s *Store) Release(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1 AND status_code = 0`, key)
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// Purge deletes entries created before olderThan and returns how many went.
func (s *Store) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) cutoff() *time.Time {
	if s.ttl <= 0 {
		return nil
	}
	c := time.Now().Add(-s.ttl)
	return &c
}
