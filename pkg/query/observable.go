package query

import (
	"sync"

	"github.com/google/uuid"
)

// Observable is a broadcast value cell. Every write is handed to a single
// dispatch goroutine and delivered to all current subscribers in write
// order, so observers never see interleaved or out-of-order values. That
// serialized hand-off is the only synchronization around published state.
type Observable[T any] struct {
	stateMu sync.RWMutex
	current T
	closed  bool
	pending []T

	subMu       sync.RWMutex
	subscribers map[uuid.UUID]func(T)

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewObservable creates an observable holding initial and starts its
// dispatch goroutine.
func NewObservable[T any](initial T) *Observable[T] {
	o := &Observable[T]{
		current:     initial,
		subscribers: make(map[uuid.UUID]func(T)),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	go o.dispatch()
	return o
}

// Get returns the most recently written value.
func (o *Observable[T]) Get() T {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.current
}

// Set writes a new value and queues it for delivery to subscribers. Set
// never blocks: values buffer without bound while a subscriber is slow.
// After Close, Set is a no-op.
func (o *Observable[T]) Set(value T) {
	o.stateMu.Lock()
	if o.closed {
		o.stateMu.Unlock()
		return
	}
	o.current = value
	o.pending = append(o.pending, value)
	o.stateMu.Unlock()
	o.signal()
}

// Subscribe registers fn to receive every subsequent write, in write order,
// and returns a function that cancels the subscription. The current value
// is not replayed; read it with Get.
func (o *Observable[T]) Subscribe(fn func(T)) func() {
	id := uuid.New()
	o.subMu.Lock()
	o.subscribers[id] = fn
	o.subMu.Unlock()

	return func() {
		o.subMu.Lock()
		defer o.subMu.Unlock()
		delete(o.subscribers, id)
	}
}

// Close stops delivery. Values already queued are still delivered before
// the dispatch goroutine exits; subsequent writes are dropped.
func (o *Observable[T]) Close() {
	o.closeOnce.Do(func() {
		o.stateMu.Lock()
		o.closed = true
		o.stateMu.Unlock()
		o.signal()
		<-o.done
	})
}

func (o *Observable[T]) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Observable[T]) dispatch() {
	defer close(o.done)
	for {
		<-o.wake
		for {
			o.stateMu.Lock()
			batch := o.pending
			o.pending = nil
			closed := o.closed
			o.stateMu.Unlock()

			if len(batch) == 0 {
				if closed {
					return
				}
				break
			}

			for _, value := range batch {
				o.subMu.RLock()
				fns := make([]func(T), 0, len(o.subscribers))
				for _, fn := range o.subscribers {
					fns = append(fns, fn)
				}
				o.subMu.RUnlock()

				for _, fn := range fns {
					fn(value)
				}
			}
		}
	}
}
