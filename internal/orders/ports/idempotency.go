package ports

import (
	"context"
	"time"
)

// StoredResponse is a checkout response kept for replay under its key. A zero
// StatusCode marks a key reserved by a checkout that has not answered yet.
type StoredResponse struct {
	StatusCode int
	Body       []byte
	OrderID    string
}

// InFlight reports whether the checkout holding the key is still running.
func (r StoredResponse) InFlight() bool {
	return r.StatusCode == 0
}

// IdempotencyStore lets a shopper resubmit the checkout form without placing
// a second order. A checkout first reserves its key, so a concurrent duplicate
// finds it taken; the first response saved under a key wins.
type IdempotencyStore interface {
	// Reserve claims key and reports whether it was free (absent or expired).
	Reserve(ctx context.Context, key string) (bool, error)
	// Get returns the entry under key, in flight or answered, or nil.
	Get(ctx context.Context, key string) (*StoredResponse, error)
	// Save answers a reservation. An answered key is never overwritten.
	Save(ctx context.Context, key string, response StoredResponse) error
	// Release drops a reservation that will never be answered.
	Release(ctx context.Context, key string) error
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
}
