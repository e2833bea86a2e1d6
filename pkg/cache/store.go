package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Store.Get when a key has no cached entry.
// Implementations wrap it so callers can detect a miss with errors.Is.
var ErrNotFound = errors.New("key not found in cache")

// Entry pairs a cached value with the time it was written. Freshness
// decisions are always made against StoredAt, never against read time.
type Entry[V any] struct {
	Value    V
	StoredAt time.Time
}

// FreshnessPolicy decides whether a stored value may still be served.
type FreshnessPolicy interface {
	// IsFresh reports whether an entry written at storedAt is usable at now.
	IsFresh(now, storedAt time.Time) bool
}

// Store is a generic interface for a keyed caching layer with timestamped
// entries. Implementations must be safe for concurrent use by many queries.
type Store[K comparable, V any] interface {
	// Get retrieves an entry by key. A miss is reported via ErrNotFound.
	Get(ctx context.Context, key K) (Entry[V], error)
	// Save writes a value for a key, recording when it was stored.
	Save(ctx context.Context, key K, value V, storedAt time.Time) error
	// IsFresh reports whether the store holds a value for key that the
	// given policy still considers usable at now.
	IsFresh(ctx context.Context, key K, now time.Time, policy FreshnessPolicy) bool
	// Closer is included for implementations that manage network connections.
	io.Closer
}

type maxAge struct {
	lifetime time.Duration
}

// MaxAge returns a FreshnessPolicy under which an entry is usable for the
// given lifetime after it was stored.
func MaxAge(lifetime time.Duration) FreshnessPolicy {
	return maxAge{lifetime: lifetime}
}

func (p maxAge) IsFresh(now, storedAt time.Time) bool {
	if storedAt.IsZero() {
		return false
	}
	return now.Sub(storedAt) <= p.lifetime
}

type keepForever struct{}

// KeepForever returns a FreshnessPolicy under which any stored entry stays
// usable until it is overwritten or evicted.
func KeepForever() FreshnessPolicy {
	return keepForever{}
}

func (keepForever) IsFresh(_, storedAt time.Time) bool {
	return !storedAt.IsZero()
}
