package signaling

import (
	"context"
	"errors"
	"sync"
	"time"

	"coincall/pkg/logger"
)

type fakePresenter struct {
	mu        sync.Mutex
	delay     time.Duration
	fail      bool
	presented map[string]int
	displays  map[string]DisplayMode
	dismissed map[string]int
}

func newFakePresenter() *fakePresenter {
	return &fakePresenter{
		presented: map[string]int{},
		displays:  map[string]DisplayMode{},
		dismissed: map[string]int{},
	}
}

func (p *fakePresenter) Present(ctx context.Context, env Envelope) error {
	if p.delay > 0 {
		// Simulates a slow permission check before the UI can start.
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("permission denied")
	}
	p.presented[env.CallID]++
	p.displays[env.CallID] = env.Display
	return nil
}

func (p *fakePresenter) Dismiss(callID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dismissed[callID]++
}

func (p *fakePresenter) presentedCount(callID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.presented[callID]
}

func (p *fakePresenter) dismissedCount(callID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dismissed[callID]
}

func (p *fakePresenter) display(callID string) DisplayMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.displays[callID]
}

func (p *fakePresenter) setFail(v bool) {
	p.mu.Lock()
	p.fail = v
	p.mu.Unlock()
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	closed []string
}

func (b *fakeBroadcaster) BroadcastClose(callID string) {
	b.mu.Lock()
	b.closed = append(b.closed, callID)
	b.mu.Unlock()
}

type fakeCallUI struct {
	displayed string
	rejected  []string
}

func (u *fakeCallUI) DisplayedCallID() string   { return u.displayed }
func (u *fakeCallUI) ShowRejected(callID string) { u.rejected = append(u.rejected, callID) }

// collector is a Submitter that records envelopes.
type collector struct {
	mu   sync.Mutex
	envs []Envelope
}

func (c *collector) Submit(_ context.Context, env Envelope) error {
	c.mu.Lock()
	c.envs = append(c.envs, env)
	c.mu.Unlock()
	return nil
}

func (c *collector) all() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Envelope(nil), c.envs...)
}

func incoming(callID string, src Channel) Envelope {
	return Envelope{
		CallID:    callID,
		Type:      EventIncoming,
		CallerID:  "alice",
		Medium:    "AUDIO",
		Timestamp: time.Now(),
		Source:    src,
	}
}

func newTestResolver(p Presenter) (*Resolver, *Registry) {
	reg := NewRegistry(16)
	return NewResolver(reg, p, ResolverOptions{Logger: logger.Discard()}), reg
}

// runHub starts a hub and returns a channel of resolutions and a stop func.
func runHub(r *Resolver) (*Hub, <-chan Action, func()) {
	h := NewHub(r, 8, logger.Discard())
	results := make(chan Action, 32)
	h.OnResolved = func(_ Envelope, a Action) { results <- a }
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(done)
	}()
	return h, results, func() {
		cancel()
		<-done
	}
}
