package registry

import (
	"context"
	"sync"
)

// Handle is a non-owning reference to a live query instance. Invalidation
// dispatch resolves handles by key and replays requests through them; the
// registry never manages a query's lifecycle.
type Handle interface {
	// InvalidateLast asks the query to re-run its most recent request.
	// A query that has never fetched treats this as a no-op.
	InvalidateLast(ctx context.Context)
	// InvalidateWith asks the query to run the given request. The request
	// must be the query's own request type, or a JSON encoding of it;
	// queries ignore values they cannot interpret.
	InvalidateWith(ctx context.Context, request any)
}

// Registry is a process-wide directory mapping a query key to the live
// query instances interested in it. Implementations must be safe for
// concurrent use.
type Registry interface {
	Register(key string, handle Handle)
	Unregister(key string, handle Handle)
	// Resolve returns the handles currently registered for key.
	Resolve(key string) []Handle
}

// InMemoryRegistry is a thread-safe in-memory Registry implementation.
type InMemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string][]Handle
}

// NewInMemoryRegistry creates a new empty registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		entries: make(map[string][]Handle),
	}
}

// Register adds a handle for a key.
func (r *InMemoryRegistry) Register(key string, handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = append(r.entries[key], handle)
}

// Unregister removes a previously registered handle. Removal is by handle
// identity, so distinct queries sharing a key do not disturb each other.
func (r *InMemoryRegistry) Unregister(key string, handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handles := r.entries[key]
	for i, h := range handles {
		if h == handle {
			r.entries[key] = append(handles[:i:i], handles[i+1:]...)
			break
		}
	}
	if len(r.entries[key]) == 0 {
		delete(r.entries, key)
	}
}

// Resolve returns a copy of the handles registered for key.
func (r *InMemoryRegistry) Resolve(key string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handles := r.entries[key]
	if len(handles) == 0 {
		return nil
	}
	out := make([]Handle, len(handles))
	copy(out, handles)
	return out
}

var (
	defaultOnce     sync.Once
	defaultRegistry *InMemoryRegistry
)

// Default returns the process-wide registry shared by queries that are not
// given an explicit one at construction.
func Default() Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewInMemoryRegistry()
	})
	return defaultRegistry
}
