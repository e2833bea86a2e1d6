package invalidation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// PubSubChannelConfig holds configuration for the Google Pub/Sub channel.
type PubSubChannelConfig struct {
	ProjectID string
	// TopicID is the topic invalidation events are published to.
	TopicID string
	// SubscriptionID is this process's subscription on TopicID. Each process
	// needs its own subscription so every process sees every event.
	SubscriptionID string
}

// PubSubChannel is a Channel implementation backed by Google Cloud Pub/Sub.
// One Receive goroutine consumes the process's subscription and fans events
// out to local per-key handlers; the query key travels as a message
// attribute so filtering never needs the payload.
type PubSubChannel struct {
	client        *pubsub.Client
	topic         *pubsub.Topic
	subscription  *pubsub.Subscription
	logger        zerolog.Logger
	cancelReceive context.CancelFunc
	doneChan      chan struct{}
	closeOnce     sync.Once
	ownsClient    bool

	subMu       sync.RWMutex
	subscribers map[string]map[uuid.UUID]Handler
}

// NewPubSubChannel creates a new PubSubChannel over an injected client and
// starts consuming the configured subscription. The client's lifecycle is
// managed by the caller.
func NewPubSubChannel(ctx context.Context, cfg *PubSubChannelConfig, client *pubsub.Client, logger zerolog.Logger) (*PubSubChannel, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}

	sub := client.Subscription(cfg.SubscriptionID)
	existsCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	exists, err := sub.Exists(existsCtx)
	if !exists || err != nil {
		return nil, fmt.Errorf("subscription %s does not exist: %w", cfg.SubscriptionID, err)
	}

	c := &PubSubChannel{
		client:       client,
		topic:        client.Topic(cfg.TopicID),
		subscription: sub,
		logger:       logger.With().Str("component", "PubSubChannel").Str("subscription_id", cfg.SubscriptionID).Logger(),
		doneChan:     make(chan struct{}),
		subscribers:  make(map[string]map[uuid.UUID]Handler),
	}
	c.start()
	return c, nil
}

// NewPubSubChannelForProject creates its own Pub/Sub client for the
// configured project. The client is closed with the channel.
func NewPubSubChannelForProject(ctx context.Context, cfg *PubSubChannelConfig, logger zerolog.Logger, opts ...option.ClientOption) (*PubSubChannel, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	c, err := NewPubSubChannel(ctx, cfg, client, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	c.ownsClient = true
	return c, nil
}

func (c *PubSubChannel) start() {
	receiveCtx, cancel := context.WithCancel(context.Background())
	c.cancelReceive = cancel

	go func() {
		defer close(c.doneChan)
		defer c.logger.Info().Msg("Pub/Sub Receive goroutine stopped.")

		c.logger.Info().Msg("Pub/Sub Receive goroutine started.")
		err := c.subscription.Receive(receiveCtx, func(_ context.Context, msg *pubsub.Message) {
			// Invalidation is advisory; a dropped event only delays a
			// refresh, so messages are always Acked.
			msg.Ack()

			event, err := decodeEvent(msg.Data)
			if err != nil {
				c.logger.Error().Err(err).Str("msg_id", msg.ID).Msg("Dropping undecodable invalidation event.")
				return
			}
			c.deliver(event)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error().Err(err).Msg("Pub/Sub Receive call exited with error")
		}
	}()
}

func (c *PubSubChannel) deliver(event Event) {
	c.subMu.RLock()
	handlers := make([]Handler, 0, len(c.subscribers[event.Key]))
	for _, h := range c.subscribers[event.Key] {
		handlers = append(handlers, h)
	}
	c.subMu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// Publish broadcasts an event on the invalidation topic and waits for the
// server to confirm it.
func (c *PubSubChannel) Publish(ctx context.Context, event Event) error {
	data, err := encodeEvent(event)
	if err != nil {
		return err
	}
	result := c.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"key": event.Key},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish invalidation for %s: %w", event.Key, err)
	}
	c.logger.Debug().Str("key", event.Key).Msg("Published invalidation event.")
	return nil
}

// Subscribe registers a local handler for events on key.
func (c *PubSubChannel) Subscribe(key string, handler Handler) (func(), error) {
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	id := uuid.New()

	c.subMu.Lock()
	keySubs, ok := c.subscribers[key]
	if !ok {
		keySubs = make(map[uuid.UUID]Handler)
		c.subscribers[key] = keySubs
	}
	keySubs[id] = handler
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if keySubs, ok := c.subscribers[key]; ok {
			delete(keySubs, id)
			if len(keySubs) == 0 {
				delete(c.subscribers, key)
			}
		}
	}, nil
}

// Close stops the Receive goroutine and flushes pending publishes. When the
// channel created its own client it is closed here as well.
func (c *PubSubChannel) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.logger.Info().Msg("Stopping Pub/Sub invalidation channel...")
		if c.cancelReceive != nil {
			c.cancelReceive()
		}
		select {
		case <-c.doneChan:
			c.logger.Info().Msg("Pub/Sub Receive goroutine confirmed stopped.")
		case <-time.After(30 * time.Second):
			c.logger.Error().Msg("Timeout waiting for Pub/Sub Receive goroutine to stop.")
		}
		c.topic.Stop()
		if c.ownsClient {
			closeErr = c.client.Close()
		}
	})
	return closeErr
}
