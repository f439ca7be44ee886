package signaling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is the polling backstop cadence while the app is foregrounded.
const DefaultPollInterval = 3 * time.Second

// RingingSource asks the server which calls are ringing for this device's user.
type RingingSource interface {
	Ringing(ctx context.Context) ([]Envelope, error)
}

// Poller polls the server while the app is in the foreground and the device is not busy.
// Empty or failed responses mean "no call"; the loop keeps going until ctx is cancelled.
type Poller struct {
	src      RingingSource
	sub      Submitter
	reg      *Registry
	interval time.Duration
	log      *slog.Logger

	mu     sync.Mutex
	paused bool
}

func NewPoller(src RingingSource, sub Submitter, reg *Registry, interval time.Duration, log *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		src:      src,
		sub:      sub,
		reg:      reg,
		interval: interval,
		log:      log.With("channel", string(ChannelPolling)),
	}
}

// Pause stops polling while the app is in the background.
func (p *Poller) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

func (p *Poller) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
}

func (p *Poller) isPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one cycle and reports how many envelopes were submitted.
func (p *Poller) Poll(ctx context.Context) (submitted int) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("poll panicked", "panic", fmt.Sprint(rec))
		}
	}()

	if p.isPaused() || p.reg.IsBusy() {
		return 0
	}
	envs, err := p.src.Ringing(ctx)
	if err != nil {
		p.log.Debug("poll failed; treating as no call", "err", err)
		return 0
	}
	for _, env := range envs {
		if env.Type == "" {
			env.Type = EventIncoming
		}
		env.Source = ChannelPolling
		if err := p.sub.Submit(ctx, env); err != nil {
			return submitted
		}
		submitted++
	}
	return submitted
}
