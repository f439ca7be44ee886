package signaling

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultRingTimeout is the hard limit on how long a device rings.
const DefaultRingTimeout = 45 * time.Second

// Grants are the platform capabilities the foreground service was started with.
type Grants struct {
	FullScreen    bool
	Notifications bool
}

// MissedReporter tells the server a call rang out on this device.
type MissedReporter interface {
	ReportMissed(ctx context.Context, callID string) error
}

// ForegroundService keeps the device ringing for an incoming call it was started for.
// Missing capabilities degrade the presentation to a minimal notification. After the ring
// timeout the ringing stops and the call is reported MISSED.
type ForegroundService struct {
	sub         Submitter
	resolver    *Resolver
	reporter    MissedReporter
	ringTimeout time.Duration
	log         *slog.Logger

	mu      sync.Mutex
	running map[string]chan struct{}
	wg      sync.WaitGroup
}

func NewForegroundService(sub Submitter, resolver *Resolver, reporter MissedReporter, ringTimeout time.Duration, log *slog.Logger) *ForegroundService {
	if ringTimeout <= 0 {
		ringTimeout = DefaultRingTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &ForegroundService{
		sub:         sub,
		resolver:    resolver,
		reporter:    reporter,
		ringTimeout: ringTimeout,
		log:         log.With("channel", string(ChannelForeground)),
		running:     map[string]chan struct{}{},
	}
}

// Start is invoked with an envelope handed over directly by the process that woke us.
// A second Start for a call already ringing here is a no-op.
func (f *ForegroundService) Start(ctx context.Context, env Envelope, grants Grants) error {
	env.Source = ChannelForeground
	if env.Type != EventIncoming {
		return f.sub.Submit(ctx, env)
	}

	env.Display = DisplayFullScreen
	if !grants.FullScreen {
		env.Display = DisplayMinimal
		f.log.Info("full-screen not granted; using minimal notification",
			"call_id", env.CallID,
			"notifications", grants.Notifications,
		)
	}

	f.mu.Lock()
	if _, ok := f.running[env.CallID]; ok {
		f.mu.Unlock()
		return nil
	}
	stop := make(chan struct{})
	f.running[env.CallID] = stop
	f.mu.Unlock()

	if err := f.sub.Submit(ctx, env); err != nil {
		f.finish(env.CallID)
		return err
	}

	f.wg.Add(1)
	go f.keepAlive(ctx, env.CallID, stop)
	return nil
}

// Stop ends the keep-alive for callID early, e.g. once answered or declined.
func (f *ForegroundService) Stop(callID string) {
	f.mu.Lock()
	stop, ok := f.running[callID]
	if ok {
		delete(f.running, callID)
	}
	f.mu.Unlock()
	if ok {
		close(stop)
	}
}

// Wait blocks until every keep-alive has returned.
func (f *ForegroundService) Wait() { f.wg.Wait() }

func (f *ForegroundService) keepAlive(ctx context.Context, callID string, stop <-chan struct{}) {
	defer f.wg.Done()
	timer := time.NewTimer(f.ringTimeout)
	defer timer.Stop()

	select {
	case <-stop:
		return
	case <-ctx.Done():
		f.finish(callID)
		return
	case <-timer.C:
	}
	f.finish(callID)

	if !f.resolver.Dismissed(callID) {
		// Answered, cancelled or never presented here.
		return
	}
	log := f.log.With("call_id", callID)
	log.Info("ring timeout; call missed")
	if f.reporter == nil {
		return
	}
	if err := f.reporter.ReportMissed(context.WithoutCancel(ctx), callID); err != nil {
		log.Warn("report missed failed", "err", err)
	}
}

func (f *ForegroundService) finish(callID string) {
	f.mu.Lock()
	delete(f.running, callID)
	f.mu.Unlock()
}
