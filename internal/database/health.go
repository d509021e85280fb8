package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CheckHealth pings the database and confirms the orders schema is in place,
// so a pod that started before migrations ran is not reported ready.
func CheckHealth(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, "SELECT 1 FROM orders LIMIT 0"); err != nil {
		return fmt.Errorf("orders schema missing: %w", err)
	}
	return nil
}
