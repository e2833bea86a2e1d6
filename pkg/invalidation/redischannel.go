package invalidation

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisChannelConfig holds the configuration for the Redis-backed channel.
type RedisChannelConfig struct {
	Addr     string
	Password string
	DB       int
	// TopicPrefix namespaces the Pub/Sub topics used for invalidation, one
	// topic per query key.
	TopicPrefix string
}

// RedisChannel is a Channel implementation backed by Redis Pub/Sub. Events
// are JSON-encoded; request payloads arrive at subscribers as
// json.RawMessage values for the query to decode.
type RedisChannel struct {
	redisClient *redis.Client
	topicPrefix string
	logger      zerolog.Logger
	wg          sync.WaitGroup
}

// NewRedisChannel creates and connects a new RedisChannel.
// It pings the Redis server to ensure connectivity before returning.
func NewRedisChannel(ctx context.Context, cfg *RedisChannelConfig, logger zerolog.Logger) (*RedisChannel, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")

	return &RedisChannel{
		redisClient: rdb,
		topicPrefix: cfg.TopicPrefix,
		logger:      logger.With().Str("component", "RedisChannel").Logger(),
	}, nil
}

// Publish broadcasts an event on the Redis topic for its key.
func (c *RedisChannel) Publish(ctx context.Context, event Event) error {
	data, err := encodeEvent(event)
	if err != nil {
		return err
	}
	if err := c.redisClient.Publish(ctx, c.topic(event.Key), data).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation for %s: %w", event.Key, err)
	}
	c.logger.Debug().Str("key", event.Key).Msg("Published invalidation event.")
	return nil
}

// Subscribe opens a Redis Pub/Sub subscription for key and pumps decoded
// events into the handler until the subscription is cancelled.
func (c *RedisChannel) Subscribe(key string, handler Handler) (func(), error) {
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	pubsub := c.redisClient.Subscribe(context.Background(), c.topic(key))
	// Confirm the subscription is established before returning so callers
	// never miss events published immediately after Subscribe.
	if _, err := pubsub.Receive(context.Background()); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe for %s: %w", key, err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for msg := range pubsub.Channel() {
			event, err := decodeEvent([]byte(msg.Payload))
			if err != nil {
				c.logger.Error().Err(err).Str("key", key).Msg("Dropping undecodable invalidation event.")
				continue
			}
			handler(event)
		}
		c.logger.Debug().Str("key", key).Msg("Invalidation subscription stopped.")
	}()

	return func() {
		if err := pubsub.Close(); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("Error closing invalidation subscription.")
		}
	}, nil
}

// Close closes the Redis client connection after all subscription pumps
// have drained.
func (c *RedisChannel) Close() error {
	c.logger.Info().Msg("Closing Redis invalidation channel...")
	err := c.redisClient.Close()
	c.wg.Wait()
	return err
}

func (c *RedisChannel) topic(key string) string {
	return c.topicPrefix + key
}
