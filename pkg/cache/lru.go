package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUStore is a generic, thread-safe, in-memory Store with a fixed size and
// a Least Recently Used eviction policy. Eviction is driven purely by
// capacity; staleness is still decided by the FreshnessPolicy at read time.
type LRUStore[K comparable, V any] struct {
	inner *lru.Cache[K, Entry[V]]
}

// NewLRUStore creates a new size-limited store.
// - maxSize: The maximum number of entries to hold. Must be > 0.
func NewLRUStore[K comparable, V any](maxSize int) (*LRUStore[K, V], error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("maxSize must be greater than 0")
	}
	inner, err := lru.New[K, Entry[V]](maxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	return &LRUStore[K, V]{inner: inner}, nil
}

// Get retrieves an entry, marking it as recently used.
func (s *LRUStore[K, V]) Get(_ context.Context, key K) (Entry[V], error) {
	entry, ok := s.inner.Get(key)
	if !ok {
		return Entry[V]{}, fmt.Errorf("'%v': %w", key, ErrNotFound)
	}
	return entry, nil
}

// Save writes a value for a key, possibly evicting the least recently used
// entry if the store is at capacity.
func (s *LRUStore[K, V]) Save(_ context.Context, key K, value V, storedAt time.Time) error {
	s.inner.Add(key, Entry[V]{Value: value, StoredAt: storedAt})
	return nil
}

// IsFresh reports whether a usable value exists for key under the policy.
func (s *LRUStore[K, V]) IsFresh(ctx context.Context, key K, now time.Time, policy FreshnessPolicy) bool {
	entry, err := s.Get(ctx, key)
	if err != nil {
		return false
	}
	return policy.IsFresh(now, entry.StoredAt)
}

// Close purges the store.
func (s *LRUStore[K, V]) Close() error {
	s.inner.Purge()
	return nil
}
