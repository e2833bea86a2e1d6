//go:build integration

package invalidation_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/illmade-knight/go-query/pkg/invalidation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisChannel_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	cfg := &invalidation.RedisChannelConfig{
		Addr:        addr,
		TopicPrefix: "invalidation-test:",
	}

	channel, err := invalidation.NewRedisChannel(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = channel.Close()
	})

	collector := &eventCollector{}
	unsubscribe, err := channel.Subscribe("users", collector.add)
	require.NoError(t, err)
	t.Cleanup(unsubscribe)

	require.NoError(t, channel.Publish(ctx, invalidation.LastData("users")))
	require.NoError(t, channel.Publish(ctx, invalidation.NewData("users", map[string]int{"page": 2})))
	require.NoError(t, channel.Publish(ctx, invalidation.LastData("posts")))

	require.Eventually(t, func() bool {
		return collector.count() == 2
	}, 10*time.Second, 50*time.Millisecond, "Subscriber should see only its key's events")

	events := collector.snapshot()
	assert.False(t, events[0].HasRequest)
	require.True(t, events[1].HasRequest)

	raw, ok := events[1].Request.(json.RawMessage)
	require.True(t, ok)
	var request map[string]int
	require.NoError(t, json.Unmarshal(raw, &request))
	assert.Equal(t, 2, request["page"])
}
