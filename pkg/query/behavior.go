package query

import "time"

// Key is the opaque identifier for a logical, cacheable data query.
type Key string

// KeyAdapter derives the effective cache key from the base key and the
// current request, letting cached entries vary with request parameters
// such as pagination.
type KeyAdapter[Request any] func(key Key, request Request) Key

// FetchingBehavior controls whether a query fetches at construction.
type FetchingBehavior[Request any] struct {
	immediate bool
	request   Request
}

// StartWhenRequested defers the first fetch until an explicit Refetch. The
// initial state may still be seeded from a fresh cached value when the
// usage policy reads the cache.
func StartWhenRequested[Request any]() FetchingBehavior[Request] {
	return FetchingBehavior[Request]{}
}

// StartImmediately triggers a refetch with request at construction.
func StartImmediately[Request any](request Request) FetchingBehavior[Request] {
	return FetchingBehavior[Request]{immediate: true, request: request}
}

// PollingBehavior controls periodic automatic re-fetching.
type PollingBehavior struct {
	interval time.Duration
}

// NoPolling disables periodic re-fetching.
func NoPolling() PollingBehavior {
	return PollingBehavior{}
}

// PollEvery re-issues the fetch on the given interval after each successful
// fetch cycle. Polling stops on a fetch failure until the next manual
// refetch.
func PollEvery(interval time.Duration) PollingBehavior {
	return PollingBehavior{interval: interval}
}

func (p PollingBehavior) enabled() bool {
	return p.interval > 0
}
