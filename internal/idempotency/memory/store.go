package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dejobratic/storefront/internal/orders/ports"
)

type entry struct {
	response ports.StoredResponse
	savedAt  time.Time
}

// Store retains checkout responses for replaying duplicate submissions.
type Store struct {
	mu    sync.Mutex
	items map[string]entry
	ttl   time.Duration
	now   func() time.Time
}

// NewStore creates a new in-memory idempotency store. A zero ttl keeps entries
// forever.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		items: make(map[string]entry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Reserve claims key for a checkout unless a live entry already holds it.
func (s *Store) Reserve(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.items[key]; ok && !s.expired(existing) {
		return false, nil
	}
	s.items[key] = entry{savedAt: s.now()}
	return true, nil
}

// Get returns the live entry for key, reserved or answered.
func (s *Store) Get(_ context.Context, key string) (*ports.StoredResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.items[key]
	if !ok || s.expired(value) {
		return nil, nil
	}
	copy := value.response
	return &copy, nil
}

// Save answers the key unless a live response is already stored under it.
func (s *Store) Save(_ context.Context, key string, response ports.StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.items[key]
	if ok && !s.expired(existing) {
		if !existing.response.InFlight() {
			return nil
		}
		s.items[key] = entry{response: response, savedAt: existing.savedAt}
		return nil
	}
	s.items[key] = entry{response: response, savedAt: s.now()}
	return nil
}

// Release frees a reservation that was never answered.
func (s *Store) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.items[key]; ok && existing.response.InFlight() {
		delete(s.items, key)
	}
	return nil
}

// Purge drops entries saved before olderThan.
func (s *Store) Purge(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, value := range s.items {
		if value.savedAt.Before(olderThan) {
			delete(s.items, key)
			n++
		}
	}
	return n, nil
}

func (s *Store) expired(e entry) bool {
	return s.ttl > 0 && s.now().Sub(e.savedAt) > s.ttl
}
