package invalidation

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Bus is the in-process Channel implementation. A single dispatch goroutine
// delivers events to subscribers in publish order, so no subscriber ever
// observes events for a key out of order.
type Bus struct {
	logger zerolog.Logger

	subMu       sync.RWMutex
	subscribers map[string]map[uuid.UUID]Handler

	stateMu sync.Mutex
	closed  bool
	queue   chan Event

	done      chan struct{}
	closeOnce sync.Once
}

// NewBus creates a new in-process invalidation bus and starts its dispatch
// goroutine.
func NewBus(logger zerolog.Logger) *Bus {
	b := &Bus{
		logger:      logger.With().Str("component", "InvalidationBus").Logger(),
		subscribers: make(map[string]map[uuid.UUID]Handler),
		queue:       make(chan Event, 128),
		done:        make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Publish enqueues an event for delivery to the current subscribers of its
// key. It returns an error only if the bus has been closed.
func (b *Bus) Publish(_ context.Context, event Event) error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	if b.closed {
		return fmt.Errorf("invalidation bus is closed")
	}
	b.queue <- event
	return nil
}

// Subscribe registers a handler for events on key.
func (b *Bus) Subscribe(key string, handler Handler) (func(), error) {
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	id := uuid.New()

	b.subMu.Lock()
	keySubs, ok := b.subscribers[key]
	if !ok {
		keySubs = make(map[uuid.UUID]Handler)
		b.subscribers[key] = keySubs
	}
	keySubs[id] = handler
	b.subMu.Unlock()

	return func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		if keySubs, ok := b.subscribers[key]; ok {
			delete(keySubs, id)
			if len(keySubs) == 0 {
				delete(b.subscribers, key)
			}
		}
	}, nil
}

// Close stops the dispatch goroutine. Events already enqueued are still
// delivered before it exits.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		b.stateMu.Lock()
		b.closed = true
		close(b.queue)
		b.stateMu.Unlock()
		<-b.done
		b.logger.Debug().Msg("Invalidation bus closed.")
	})
	return nil
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for event := range b.queue {
		b.subMu.RLock()
		handlers := make([]Handler, 0, len(b.subscribers[event.Key]))
		for _, h := range b.subscribers[event.Key] {
			handlers = append(handlers, h)
		}
		b.subMu.RUnlock()

		for _, h := range handlers {
			h(event)
		}
	}
}

var (
	defaultOnce sync.Once
	defaultBus  *Bus
)

// Default returns the process-wide bus shared by queries that are not given
// an explicit channel at construction.
func Default() *Bus {
	defaultOnce.Do(func() {
		defaultBus = NewBus(zerolog.Nop())
	})
	return defaultBus
}
