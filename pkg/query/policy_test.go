package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanFetch(t *testing.T) {
	testCases := []struct {
		name        string
		policy      CacheUsagePolicy
		cacheFresh  bool
		priorFailed bool
		expected    fetchPlan
	}{
		{
			name:     "None always fetches and never reads",
			policy:   CacheNone,
			expected: fetchPlan{mustFetch: true},
		},
		{
			name:       "None ignores freshness",
			policy:     CacheNone,
			cacheFresh: true,
			expected:   fetchPlan{mustFetch: true},
		},
		{
			name:       "UseInsteadOfFetching with fresh cache skips the fetch",
			policy:     UseInsteadOfFetching,
			cacheFresh: true,
			expected:   fetchPlan{readCacheFirst: true},
		},
		{
			name:     "UseInsteadOfFetching without fresh cache fetches",
			policy:   UseInsteadOfFetching,
			expected: fetchPlan{mustFetch: true},
		},
		{
			name:       "UseAndThenFetch serves cache then fetches anyway",
			policy:     UseAndThenFetch,
			cacheFresh: true,
			expected:   fetchPlan{readCacheFirst: true, mustFetch: true},
		},
		{
			name:     "UseAndThenFetch without fresh cache just fetches",
			policy:   UseAndThenFetch,
			expected: fetchPlan{mustFetch: true},
		},
		{
			name:     "UseIfFetchFails fetches with loading and failure masking",
			policy:   UseIfFetchFails,
			expected: fetchPlan{mustFetch: true, maskFailureWithCache: true, loadingFirst: true},
		},
		{
			name:       "UseIfFetchFails never reads cache first",
			policy:     UseIfFetchFails,
			cacheFresh: true,
			expected:   fetchPlan{mustFetch: true, maskFailureWithCache: true, loadingFirst: true},
		},
		{
			name:       "UseAndThenFetchIgnoringFails serves cache, fetches, masks",
			policy:     UseAndThenFetchIgnoringFails,
			cacheFresh: true,
			expected:   fetchPlan{readCacheFirst: true, mustFetch: true, maskFailureWithCache: true},
		},
		{
			name:        "UseAndThenFetchIgnoringFails shows loading only after a failure",
			policy:      UseAndThenFetchIgnoringFails,
			priorFailed: true,
			expected:    fetchPlan{mustFetch: true, maskFailureWithCache: true, loadingFirst: true},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, planFetch(tc.policy, tc.cacheFresh, tc.priorFailed))
		})
	}
}

func TestCacheUsagePolicy_ReadsCache(t *testing.T) {
	assert.False(t, CacheNone.readsCache())
	assert.True(t, UseInsteadOfFetching.readsCache())
	assert.True(t, UseAndThenFetch.readsCache())
	assert.False(t, UseIfFetchFails.readsCache())
	assert.True(t, UseAndThenFetchIgnoringFails.readsCache())
}
