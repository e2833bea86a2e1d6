package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL is a hard server-side expiry applied to every entry, independent
	// of the freshness policy queries evaluate at read time. Zero means no
	// server-side expiry.
	TTL time.Duration
}

// redisEnvelope is the JSON document stored per key. The stored-at time
// travels with the value so freshness survives the round trip.
type redisEnvelope[V any] struct {
	Value    V         `json:"value"`
	StoredAt time.Time `json:"storedAt"`
}

// RedisStore is a generic Store implementation backed by Redis. Values are
// stored as JSON envelopes carrying their write timestamp.
type RedisStore[K comparable, V any] struct {
	redisClient *redis.Client
	logger      zerolog.Logger
	ttl         time.Duration
}

// NewRedisStore creates and connects a new generic RedisStore.
// It pings the Redis server to ensure connectivity before returning.
func NewRedisStore[K comparable, V any](
	ctx context.Context,
	cfg *RedisConfig,
	logger zerolog.Logger,
) (*RedisStore[K, V], error) {
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

	return &RedisStore[K, V]{
		redisClient: rdb,
		logger:      logger.With().Str("component", "RedisStore").Logger(),
		ttl:         cfg.TTL,
	}, nil
}

// Get retrieves an entry by key. A redis.Nil reply is a normal miss and is
// reported as ErrNotFound; any other error is a genuine problem.
func (s *RedisStore[K, V]) Get(ctx context.Context, key K) (Entry[V], error) {
	stringKey := fmt.Sprintf("%v", key)
	cachedData, err := s.redisClient.Get(ctx, stringKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry[V]{}, fmt.Errorf("'%s': %w", stringKey, ErrNotFound)
		}
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Unexpected Redis error during get.")
		return Entry[V]{}, fmt.Errorf("redis get for %s: %w", stringKey, err)
	}

	var envelope redisEnvelope[V]
	if err := json.Unmarshal([]byte(cachedData), &envelope); err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to unmarshal cached data.")
		return Entry[V]{}, fmt.Errorf("failed to unmarshal data: %w", err)
	}

	s.logger.Debug().Str("key", stringKey).Msg("Redis cache hit.")
	return Entry[V]{Value: envelope.Value, StoredAt: envelope.StoredAt}, nil
}

// Save writes a value for a key with the configured TTL.
func (s *RedisStore[K, V]) Save(ctx context.Context, key K, value V, storedAt time.Time) error {
	stringKey := fmt.Sprintf("%v", key)
	jsonData, err := json.Marshal(redisEnvelope[V]{Value: value, StoredAt: storedAt})
	if err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to marshal data for caching.")
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := s.redisClient.Set(ctx, stringKey, jsonData, s.ttl).Err(); err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to set data in Redis cache.")
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	s.logger.Debug().Str("key", stringKey).Msg("Successfully stored data in Redis cache.")
	return nil
}

// IsFresh reports whether a usable value exists for key under the policy.
func (s *RedisStore[K, V]) IsFresh(ctx context.Context, key K, now time.Time, policy FreshnessPolicy) bool {
	entry, err := s.Get(ctx, key)
	if err != nil {
		return false
	}
	return policy.IsFresh(now, entry.StoredAt)
}

// Close closes the Redis client connection.
func (s *RedisStore[K, V]) Close() error {
	if s.redisClient != nil {
		s.logger.Info().Msg("Closing Redis client connection...")
		return s.redisClient.Close()
	}
	return nil
}
