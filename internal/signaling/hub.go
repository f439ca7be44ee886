package signaling

import (
	"context"
	"errors"
	"log/slog"
)

var ErrHubClosed = errors.New("signaling: hub stopped")

// Submitter accepts envelopes from a delivery channel.
type Submitter interface {
	Submit(ctx context.Context, env Envelope) error
}

// Hub fans every channel into a single consumer that feeds the resolver.
type Hub struct {
	in       chan Envelope
	done     chan struct{}
	resolver *Resolver
	log      *slog.Logger

	// OnResolved, if set, observes every decision. Called from the consumer goroutine.
	OnResolved func(Envelope, Action)
}

func NewHub(resolver *Resolver, buffer int, log *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		in:       make(chan Envelope, buffer),
		done:     make(chan struct{}),
		resolver: resolver,
		log:      log,
	}
}

func (h *Hub) Submit(ctx context.Context, env Envelope) error {
	select {
	case h.in <- env:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-h.in:
			action := h.resolver.Resolve(ctx, env)
			if h.OnResolved != nil {
				h.OnResolved(env, action)
			}
		}
	}
}
