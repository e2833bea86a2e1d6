package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/illmade-knight/go-query/pkg/cache"
	"github.com/illmade-knight/go-query/pkg/invalidation"
	"github.com/illmade-knight/go-query/pkg/registry"
	"github.com/rs/zerolog"
)

// Fetcher is a generic function type for fetching a response for a request.
// It may be called many times concurrently and should honour ctx.
type Fetcher[Request any, Response any] func(ctx context.Context, request Request) (Response, error)

// CacheConfig declares how a query uses its cache store.
type CacheConfig[Response any] struct {
	// Store is the keyed persistence layer. Nil disables caching entirely
	// and forces the usage policy to CacheNone.
	Store cache.Store[Key, Response]
	// Usage governs when cached data is read relative to fetching.
	Usage CacheUsagePolicy
	// Freshness decides whether a stored entry is still usable. Defaults
	// to cache.KeepForever().
	Freshness cache.FreshnessPolicy
	// WriteTimeout bounds the background cache write after a successful
	// fetch. Defaults to 10 seconds.
	WriteTimeout time.Duration
}

// Config holds the construction parameters for a Query.
type Config[Request any, Response any] struct {
	// Key identifies the logical query for caching and invalidation.
	Key Key
	// KeyAdapter derives the effective cache key from Key and the current
	// request. Defaults to using Key unchanged.
	KeyAdapter KeyAdapter[Request]
	// Fetching controls whether a fetch is issued at construction.
	Fetching FetchingBehavior[Request]
	// Polling controls periodic automatic re-fetching.
	Polling PollingBehavior
	// Cache declares the cache store and usage policy.
	Cache CacheConfig[Response]
	// Registry is the directory of live queries. Defaults to the
	// process-wide registry.
	Registry registry.Registry
	// Channel is the invalidation event source. Defaults to the
	// process-wide in-process bus.
	Channel invalidation.Channel
}

// Query is a reactive, per-key fetch-and-cache unit. It owns a small state
// machine (idle, loading, succeeded, failed), decides cache-versus-fetch
// ordering from its usage policy, re-runs on invalidation events and
// optionally re-polls on a timer. All state writes are published through a
// single serialized Observable, so observers see them in write order.
type Query[Request any, Response any] struct {
	key        Key
	keyAdapter KeyAdapter[Request]
	usage      CacheUsagePolicy
	freshness  cache.FreshnessPolicy
	store      cache.Store[Key, Response]
	writeTTL   time.Duration
	fetcher    Fetcher[Request, Response]
	polling    PollingBehavior
	registry   registry.Registry
	logger     zerolog.Logger

	state *Observable[State[Response]]

	mu          sync.Mutex
	lastRequest *Request
	stopPolling context.CancelFunc
	closed      bool

	lifeCtx     context.Context
	lifeCancel  context.CancelFunc
	unsubscribe func()
	closeOnce   sync.Once
}

// New creates a Query, registers it for its key, subscribes it to
// invalidation events and applies the fetching behavior: StartImmediately
// triggers a refetch right away, StartWhenRequested seeds the state from a
// fresh cached value when the usage policy reads the cache.
func New[Request any, Response any](
	ctx context.Context,
	cfg Config[Request, Response],
	fetcher Fetcher[Request, Response],
	logger zerolog.Logger,
) (*Query[Request, Response], error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("query key cannot be empty")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher cannot be nil")
	}
	if cfg.Cache.Store == nil && cfg.Cache.Usage != CacheNone {
		return nil, fmt.Errorf("cache usage policy %s requires a cache store", cfg.Cache.Usage)
	}
	if cfg.KeyAdapter == nil {
		cfg.KeyAdapter = func(key Key, _ Request) Key { return key }
	}
	if cfg.Cache.Freshness == nil {
		cfg.Cache.Freshness = cache.KeepForever()
	}
	if cfg.Cache.WriteTimeout <= 0 {
		cfg.Cache.WriteTimeout = 10 * time.Second
	}
	if cfg.Registry == nil {
		cfg.Registry = registry.Default()
	}
	if cfg.Channel == nil {
		cfg.Channel = invalidation.Default()
	}

	lifeCtx, lifeCancel := context.WithCancel(context.Background())
	q := &Query[Request, Response]{
		key:        cfg.Key,
		keyAdapter: cfg.KeyAdapter,
		usage:      cfg.Cache.Usage,
		freshness:  cfg.Cache.Freshness,
		store:      cfg.Cache.Store,
		writeTTL:   cfg.Cache.WriteTimeout,
		fetcher:    fetcher,
		polling:    cfg.Polling,
		registry:   cfg.Registry,
		logger:     logger.With().Str("component", "Query").Str("query_key", string(cfg.Key)).Logger(),
		state:      NewObservable(Idle[Response]()),
		lifeCtx:    lifeCtx,
		lifeCancel: lifeCancel,
	}

	q.registry.Register(string(q.key), q)
	unsubscribe, err := cfg.Channel.Subscribe(string(q.key), q.onInvalidationEvent)
	if err != nil {
		q.registry.Unregister(string(q.key), q)
		lifeCancel()
		q.state.Close()
		return nil, fmt.Errorf("failed to subscribe to invalidation events: %w", err)
	}
	q.unsubscribe = unsubscribe

	if cfg.Fetching.immediate {
		q.Refetch(ctx, cfg.Fetching.request)
	} else {
		q.seedFromCache(ctx)
	}

	return q, nil
}

// Key returns the query's base key.
func (q *Query[Request, Response]) Key() Key {
	return q.key
}

// LastRequest returns the most recent request recorded by Refetch and
// whether one exists. It is recorded before any state transition from the
// refetch becomes observable.
func (q *Query[Request, Response]) LastRequest() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.lastRequest == nil {
		var zero Request
		return zero, false
	}
	return *q.lastRequest, true
}

// State returns the current published state.
func (q *Query[Request, Response]) State() State[Response] {
	return q.state.Get()
}

// Subscribe registers fn to receive every subsequent state write, in write
// order, and returns a function that cancels the subscription.
func (q *Query[Request, Response]) Subscribe(fn func(State[Response])) func() {
	return q.state.Subscribe(fn)
}

// OnValue registers fn on the derived value-only stream: it fires for every
// succeeded state, and never for idle, loading or failed.
func (q *Query[Request, Response]) OnValue(fn func(Response)) func() {
	return q.state.Subscribe(func(s State[Response]) {
		if value, ok := s.Value(); ok {
			fn(value)
		}
	})
}

// Refetch records request as the query's last request, cancels any active
// polling and runs one fetch cycle under the usage policy. It returns
// immediately; results are observed through the state stream, never as a
// synchronous error. Rapid repeated calls may leave multiple fetches in
// flight; the last completion to arrive determines the final state.
func (q *Query[Request, Response]) Refetch(ctx context.Context, request Request) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	req := request
	q.lastRequest = &req
	q.cancelPollingLocked()
	q.mu.Unlock()

	if planFetch(q.usage, false, q.state.Get().IsFailed()).loadingFirst {
		q.state.Set(Loading[Response]())
	}

	go q.performFetch(ctx, request, true)
}

// Close disposes the query: it unregisters from the registry, cancels the
// invalidation subscription and any polling, and closes the state stream so
// late fetch completions are no longer observable. Close is idempotent.
func (q *Query[Request, Response]) Close() error {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.cancelPollingLocked()
		q.mu.Unlock()

		if q.unsubscribe != nil {
			q.unsubscribe()
		}
		q.registry.Unregister(string(q.key), q)
		q.lifeCancel()
		q.state.Close()
		q.logger.Debug().Msg("Query disposed.")
	})
	return nil
}

// InvalidateLast re-runs the most recent request. It is a no-op when the
// query has never fetched. It implements registry.Handle.
func (q *Query[Request, Response]) InvalidateLast(ctx context.Context) {
	q.mu.Lock()
	last := q.lastRequest
	q.mu.Unlock()
	if last == nil {
		q.logger.Debug().Msg("Invalidation with no prior request, ignoring.")
		return
	}
	q.Refetch(ctx, *last)
}

// InvalidateWith runs a fetch cycle for the given request. The request must
// be this query's Request type or a JSON encoding of it; anything else is
// logged and dropped. It implements registry.Handle.
func (q *Query[Request, Response]) InvalidateWith(ctx context.Context, request any) {
	if typed, ok := request.(Request); ok {
		q.Refetch(ctx, typed)
		return
	}

	var raw []byte
	switch payload := request.(type) {
	case json.RawMessage:
		raw = payload
	case []byte:
		raw = payload
	}
	if raw != nil {
		var typed Request
		if err := json.Unmarshal(raw, &typed); err == nil {
			q.Refetch(ctx, typed)
			return
		}
	}

	q.logger.Warn().Type("request_type", request).Msg("Dropping invalidation request of unusable type.")
}

// onInvalidationEvent resolves an invalidation event to a refetch.
func (q *Query[Request, Response]) onInvalidationEvent(event invalidation.Event) {
	if !event.HasRequest {
		q.InvalidateLast(q.lifeCtx)
		return
	}
	q.InvalidateWith(q.lifeCtx, event.Request)
}

// seedFromCache sets the initial state from a fresh cached value for the
// unadapted key, when the usage policy reads the cache. No fetch is issued.
func (q *Query[Request, Response]) seedFromCache(ctx context.Context) {
	if q.store == nil || !q.usage.readsCache() {
		return
	}
	if value, ok := q.freshValue(ctx, q.key); ok {
		q.logger.Debug().Msg("Seeding initial state from cache.")
		q.state.Set(Succeeded(value))
	}
}

// performFetch runs one fetch cycle for request: the policy gate, the fetch
// itself, the state write and the cache write-back. A cycle issued by Refetch
// also starts polling on success; cycles issued by the polling timer do not,
// so the timer keeps a fixed period across ticks.
func (q *Query[Request, Response]) performFetch(ctx context.Context, request Request, startPollingAfter bool) {
	adaptedKey := q.keyAdapter(q.key, request)

	var cached Response
	cacheFresh := false
	if q.store != nil && q.usage.readsCache() {
		cached, cacheFresh = q.freshValue(ctx, adaptedKey)
	}

	plan := planFetch(q.usage, cacheFresh, q.state.Get().IsFailed())
	if plan.readCacheFirst {
		q.state.Set(Succeeded(cached))
	}
	if !plan.mustFetch {
		q.logger.Debug().Str("policy", q.usage.String()).Msg("Fresh cache hit, skipping fetch.")
		if startPollingAfter {
			q.startPolling(request)
		}
		return
	}

	response, err := q.fetcher(ctx, request)
	if err != nil {
		q.completeFailure(ctx, adaptedKey, err, plan)
		return
	}

	q.state.Set(Succeeded(response))
	if q.store != nil {
		q.writeBack(adaptedKey, response)
	}
	if startPollingAfter {
		q.startPolling(request)
	}
}

// completeFailure applies the completion-failure rule: polling stops, and
// the error is either masked by a usable cached value or published as a
// failed state.
func (q *Query[Request, Response]) completeFailure(ctx context.Context, adaptedKey Key, fetchErr error, plan fetchPlan) {
	q.mu.Lock()
	q.cancelPollingLocked()
	q.mu.Unlock()

	if plan.maskFailureWithCache && q.store != nil {
		if value, ok := q.freshValue(ctx, adaptedKey); ok {
			q.logger.Debug().Err(fetchErr).Msg("Fetch failed, masking with cached value.")
			q.state.Set(Succeeded(value))
			return
		}
	}

	q.logger.Warn().Err(fetchErr).Msg("Fetch failed.")
	q.state.Set(Failed[Response](fetchErr))
}

// freshValue reads the cache for key and reports whether the entry is
// usable under the freshness policy.
func (q *Query[Request, Response]) freshValue(ctx context.Context, key Key) (Response, bool) {
	entry, err := q.store.Get(ctx, key)
	if err != nil {
		var zero Response
		return zero, false
	}
	if !q.freshness.IsFresh(time.Now(), entry.StoredAt) {
		var zero Response
		return zero, false
	}
	return entry.Value, true
}

// writeBack stores a fetched response in the background so the state write
// is never delayed by cache IO.
func (q *Query[Request, Response]) writeBack(adaptedKey Key, response Response) {
	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), q.writeTTL)
		defer cancel()
		if err := q.store.Save(writeCtx, adaptedKey, response, time.Now()); err != nil {
			q.logger.Error().Err(err).Str("cache_key", string(adaptedKey)).Msg("Failed to write to cache in background.")
		}
	}()
}

// startPolling starts the repeating fetch timer after a successful cycle.
// The timer runs until a new Refetch, a fetch failure or Close cancels it.
// pollCtx only governs the timer loop: tick fetches run on the query
// lifetime, so cancelling pending ticks never cancels an in-flight fetch.
func (q *Query[Request, Response]) startPolling(request Request) {
	if !q.polling.enabled() {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.cancelPollingLocked()

	pollCtx, cancel := context.WithCancel(q.lifeCtx)
	q.stopPolling = cancel

	go func() {
		ticker := time.NewTicker(q.polling.interval)
		defer ticker.Stop()
		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				q.logger.Debug().Msg("Polling tick, re-issuing fetch.")
				q.performFetch(q.lifeCtx, request, false)
			}
		}
	}()
}

// cancelPollingLocked stops any active polling timer. Callers hold q.mu.
func (q *Query[Request, Response]) cancelPollingLocked() {
	if q.stopPolling != nil {
		q.stopPolling()
		q.stopPolling = nil
	}
}
