package invalidation

import (
	"context"
	"fmt"

	"github.com/illmade-knight/go-query/pkg/registry"
	"github.com/rs/zerolog"
)

// Invalidator is the producer-side facade for signalling that a key's data
// changed. Given a Channel it broadcasts events to every subscriber; given
// only a Registry it dispatches directly to the live queries in this
// process.
type Invalidator struct {
	channel  Channel
	registry registry.Registry
	logger   zerolog.Logger
}

// NewInvalidator creates a new Invalidator. Either channel or reg may be
// nil, but not both: with no channel, events are delivered synchronously
// through the registry's handles.
func NewInvalidator(channel Channel, reg registry.Registry, logger zerolog.Logger) (*Invalidator, error) {
	if channel == nil && reg == nil {
		return nil, fmt.Errorf("invalidator needs a channel or a registry")
	}
	return &Invalidator{
		channel:  channel,
		registry: reg,
		logger:   logger.With().Str("component", "Invalidator").Logger(),
	}, nil
}

// InvalidateLast signals that queries for key should replay their most
// recent request.
func (i *Invalidator) InvalidateLast(ctx context.Context, key string) error {
	if i.channel == nil {
		for _, h := range i.registry.Resolve(key) {
			h.InvalidateLast(ctx)
		}
		return nil
	}
	return i.channel.Publish(ctx, LastData(key))
}

// Invalidate signals that queries for key should fetch with request.
func (i *Invalidator) Invalidate(ctx context.Context, key string, request any) error {
	if i.channel == nil {
		for _, h := range i.registry.Resolve(key) {
			h.InvalidateWith(ctx, request)
		}
		return nil
	}
	return i.channel.Publish(ctx, NewData(key, request))
}
