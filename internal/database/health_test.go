//go:build integration

package database_test

import (
	"context"
	"testing"

	"github.com/dejobratic/storefront/internal/database"
	"github.com/dejobratic/storefront/internal/database/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckHealth(t *testing.T) {
	pool := dbtest.NewPool(t)
	ctx := context.Background()

	require.NoError(t, database.CheckHealth(ctx, pool))

	_, err := pool.Exec(ctx, "ALTER TABLE orders RENAME TO orders_moved")
	require.NoError(t, err)
	assert.ErrorContains(t, database.CheckHealth(ctx, pool), "orders schema missing")
}
