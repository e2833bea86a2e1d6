package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemoryStore is a generic, thread-safe, in-memory Store implementation.
type InMemoryStore[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]Entry[V]
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore[K comparable, V any]() *InMemoryStore[K, V] {
	return &InMemoryStore[K, V]{
		data: make(map[K]Entry[V]),
	}
}

// Get retrieves an entry from the store.
func (s *InMemoryStore[K, V]) Get(_ context.Context, key K) (Entry[V], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.data[key]
	if !ok {
		return Entry[V]{}, fmt.Errorf("'%v': %w", key, ErrNotFound)
	}
	return entry, nil
}

// Save writes a value for a key, overwriting any existing entry.
func (s *InMemoryStore[K, V]) Save(_ context.Context, key K, value V, storedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = Entry[V]{Value: value, StoredAt: storedAt}
	return nil
}

// IsFresh reports whether a usable value exists for key under the policy.
func (s *InMemoryStore[K, V]) IsFresh(ctx context.Context, key K, now time.Time, policy FreshnessPolicy) bool {
	entry, err := s.Get(ctx, key)
	if err != nil {
		return false
	}
	return policy.IsFresh(now, entry.StoredAt)
}

// Delete removes a key. Used by applications that invalidate entries directly.
func (s *InMemoryStore[K, V]) Delete(_ context.Context, key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Close is a no-op for the in-memory store but satisfies the Store interface.
func (s *InMemoryStore[K, V]) Close() error {
	return nil
}
