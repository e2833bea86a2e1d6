package invalidation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-query/pkg/invalidation"
	"github.com/illmade-knight/go-query/pkg/registry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandle is a registry.Handle double that records invalidations.
type recordingHandle struct {
	mu        sync.Mutex
	lastCalls int
	requests  []any
}

func (h *recordingHandle) InvalidateLast(_ context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastCalls++
}

func (h *recordingHandle) InvalidateWith(_ context.Context, request any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, request)
}

func TestNewInvalidator_Validation(t *testing.T) {
	_, err := invalidation.NewInvalidator(nil, nil, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs a channel or a registry")
}

func TestInvalidator_DirectDispatchThroughRegistry(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewInMemoryRegistry()
	h1, h2 := &recordingHandle{}, &recordingHandle{}
	reg.Register("users", h1)
	reg.Register("users", h2)
	reg.Register("posts", &recordingHandle{})

	inv, err := invalidation.NewInvalidator(nil, reg, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, inv.InvalidateLast(ctx, "users"))
	require.NoError(t, inv.Invalidate(ctx, "users", "r2"))

	assert.Equal(t, 1, h1.lastCalls)
	assert.Equal(t, 1, h2.lastCalls)
	assert.Equal(t, []any{"r2"}, h1.requests)
	assert.Equal(t, []any{"r2"}, h2.requests)
}

func TestInvalidator_PublishesThroughChannel(t *testing.T) {
	ctx := context.Background()
	bus := invalidation.NewBus(zerolog.Nop())
	defer func() { _ = bus.Close() }()

	collector := &eventCollector{}
	_, err := bus.Subscribe("users", collector.add)
	require.NoError(t, err)

	inv, err := invalidation.NewInvalidator(bus, nil, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, inv.InvalidateLast(ctx, "users"))
	require.NoError(t, inv.Invalidate(ctx, "users", "r2"))

	require.Eventually(t, func() bool { return collector.count() == 2 }, time.Second, 10*time.Millisecond)

	events := collector.snapshot()
	assert.False(t, events[0].HasRequest)
	require.True(t, events[1].HasRequest)
	assert.Equal(t, "r2", events[1].Request)
}
