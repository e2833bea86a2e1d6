package invalidation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Event is a broadcast signal that the data for a query key has changed and
// should be refreshed. An event either replays the query's most recent
// request (HasRequest false) or carries a new request to fetch with.
type Event struct {
	Key        string
	HasRequest bool
	// Request is the new request value. In-process it is the query's own
	// request type; events arriving over a remote channel carry it as a
	// json.RawMessage for the subscriber to decode.
	Request any
}

// LastData builds an event asking queries for key to replay their most
// recent request.
func LastData(key string) Event {
	return Event{Key: key}
}

// NewData builds an event asking queries for key to fetch with request.
func NewData(key string, request any) Event {
	return Event{Key: key, HasRequest: true, Request: request}
}

// Handler receives invalidation events for a subscribed key.
type Handler func(event Event)

// Channel is the broadcast mechanism by which any part of the application
// can signal that a key's data changed. Subscribers receive a live stream
// of events for their key for the lifetime of their subscription.
type Channel interface {
	// Publish broadcasts an event to all current subscribers of its key.
	Publish(ctx context.Context, event Event) error
	// Subscribe registers a handler for events on key and returns a
	// function that cancels the subscription.
	Subscribe(key string, handler Handler) (unsubscribe func(), err error)
	// Closer tears down the channel and any transport it manages.
	io.Closer
}

// wireEvent is the JSON shape events take over remote channels.
type wireEvent struct {
	Key        string          `json:"key"`
	HasRequest bool            `json:"hasRequest"`
	Request    json.RawMessage `json:"request,omitempty"`
}

func encodeEvent(event Event) ([]byte, error) {
	wire := wireEvent{Key: event.Key, HasRequest: event.HasRequest}
	if event.HasRequest {
		raw, err := json.Marshal(event.Request)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event request: %w", err)
		}
		wire.Request = raw
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

func decodeEvent(data []byte) (Event, error) {
	var wire wireEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	event := Event{Key: wire.Key, HasRequest: wire.HasRequest}
	if wire.HasRequest {
		event.Request = wire.Request
	}
	return event, nil
}
