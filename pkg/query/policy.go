package query

import "fmt"

// CacheUsagePolicy declares when cached data is read relative to issuing a
// fetch.
type CacheUsagePolicy int

const (
	// CacheNone fetches unconditionally and never reads the cache, though
	// successful responses are still written to it.
	CacheNone CacheUsagePolicy = iota
	// UseInsteadOfFetching serves a fresh cached value in place of
	// fetching; only a miss or stale entry triggers a fetch.
	UseInsteadOfFetching
	// UseAndThenFetch serves a fresh cached value immediately, then always
	// fetches and overwrites it.
	UseAndThenFetch
	// UseIfFetchFails always fetches; on failure it falls back to a fresh
	// cached value, reporting failure only when none exists.
	UseIfFetchFails
	// UseAndThenFetchIgnoringFails serves a fresh cached value immediately,
	// then fetches; a failing fetch keeps the cached value instead of
	// surfacing the error.
	UseAndThenFetchIgnoringFails
)

// String returns a human-readable policy name for logging.
func (p CacheUsagePolicy) String() string {
	switch p {
	case CacheNone:
		return "none"
	case UseInsteadOfFetching:
		return "useInsteadOfFetching"
	case UseAndThenFetch:
		return "useAndThenFetch"
	case UseIfFetchFails:
		return "useIfFetchFails"
	case UseAndThenFetchIgnoringFails:
		return "useAndThenFetchIgnoringFails"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// readsCache reports whether the policy ever serves cached data ahead of a
// fetch. UseIfFetchFails reads the cache only after a failure, so it is not
// included here.
func (p CacheUsagePolicy) readsCache() bool {
	switch p {
	case UseInsteadOfFetching, UseAndThenFetch, UseAndThenFetchIgnoringFails:
		return true
	default:
		return false
	}
}

// fetchPlan is the pure decision a policy yields for one fetch cycle. Both
// the construction-time seed path and the refetch path consume it, so the
// five-way branching lives in exactly one place.
type fetchPlan struct {
	// readCacheFirst publishes the cached value before any fetch result.
	readCacheFirst bool
	// mustFetch issues the fetch; false short-circuits the cycle entirely.
	mustFetch bool
	// maskFailureWithCache re-reads the cache on fetch failure and serves
	// the cached value instead of the error when one is usable.
	maskFailureWithCache bool
	// loadingFirst publishes a loading state before the cycle starts. It
	// never depends on cache freshness, only on policy and prior state.
	loadingFirst bool
}

// planFetch decides the control flow for one fetch cycle from the policy,
// whether a fresh cached value exists for the adapted key, and whether the
// query is currently in a failed state.
func planFetch(policy CacheUsagePolicy, cacheFresh bool, priorFailed bool) fetchPlan {
	switch policy {
	case UseInsteadOfFetching:
		return fetchPlan{
			readCacheFirst: cacheFresh,
			mustFetch:      !cacheFresh,
		}
	case UseAndThenFetch:
		return fetchPlan{
			readCacheFirst: cacheFresh,
			mustFetch:      true,
		}
	case UseIfFetchFails:
		return fetchPlan{
			mustFetch:            true,
			maskFailureWithCache: true,
			loadingFirst:         true,
		}
	case UseAndThenFetchIgnoringFails:
		return fetchPlan{
			readCacheFirst:       cacheFresh,
			mustFetch:            true,
			maskFailureWithCache: true,
			loadingFirst:         priorFailed,
		}
	default:
		return fetchPlan{mustFetch: true}
	}
}
