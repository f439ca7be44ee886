package signaling

import (
	"context"
	"log/slog"
	"sync"
)

type Action int

const (
	Suppress Action = iota
	Present
)

func (a Action) String() string {
	if a == Present {
		return "present"
	}
	return "suppress"
}

// Presenter renders the incoming-call UI: ringtone, full-screen view or notification.
// Present returns once the presentation has started, not once it is answered.
type Presenter interface {
	Present(ctx context.Context, env Envelope) error
	Dismiss(callID string)
}

// Broadcaster emits the local "close incoming call" signal to any open screen.
type Broadcaster interface {
	BroadcastClose(callID string)
}

// ActiveCallUI is the caller's outgoing call screen.
type ActiveCallUI interface {
	DisplayedCallID() string
	ShowRejected(callID string)
}

// Resolver decides, for every envelope from every channel, whether this device presents
// the call. Incoming resolution is serialized so a slow Present cannot let a second channel
// present the same call before the first one is recorded.
type Resolver struct {
	mu         sync.Mutex
	reg        *Registry
	presenter  Presenter
	broadcast  Broadcaster
	ui         ActiveCallUI
	log        *slog.Logger
	presenting string
}

type ResolverOptions struct {
	Broadcaster  Broadcaster
	ActiveCallUI ActiveCallUI
	Logger       *slog.Logger
}

func NewResolver(reg *Registry, presenter Presenter, opts ResolverOptions) *Resolver {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		reg:       reg,
		presenter: presenter,
		broadcast: opts.Broadcaster,
		ui:        opts.ActiveCallUI,
		log:       log,
	}
}

func (r *Resolver) Resolve(ctx context.Context, env Envelope) Action {
	log := r.log.With("call_id", env.CallID, "channel", string(env.Source))

	switch env.Type {
	case EventCancelled:
		r.cancel(env, log)
		return Suppress
	case EventRejected:
		r.rejected(env, log)
		return Suppress
	case EventIncoming:
	default:
		log.Warn("unknown envelope type", "type", string(env.Type))
		return Suppress
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Cancellation wins regardless of arrival order.
	if r.reg.IsCancelled(env.CallID) {
		log.Debug("suppressed: cancelled")
		return Suppress
	}
	if r.reg.IsProcessed(env.CallID) {
		log.Debug("suppressed: already processed")
		return Suppress
	}
	// Not marked processed: the call stays eligible if busy clears in time.
	if r.reg.IsBusy() {
		log.Info("suppressed: device busy")
		return Suppress
	}

	if err := r.presenter.Present(ctx, env); err != nil {
		log.Warn("presentation failed to start", "err", err)
		return Suppress
	}
	r.reg.MarkProcessed(env.CallID)
	r.reg.MarkBusy(true)
	r.presenting = env.CallID
	log.Info("incoming call presented", "display", string(env.Display))
	return Present
}

func (r *Resolver) cancel(env Envelope, log *slog.Logger) {
	// Recorded before taking the lock so an in-flight Present sees it on the next envelope.
	r.reg.MarkCancelled(env.CallID)

	r.mu.Lock()
	if r.presenting == env.CallID {
		r.presenting = ""
		r.reg.MarkBusy(false)
	}
	r.mu.Unlock()

	r.presenter.Dismiss(env.CallID)
	if r.broadcast != nil {
		r.broadcast.BroadcastClose(env.CallID)
	}
	log.Info("incoming call cancelled")
}

func (r *Resolver) rejected(env Envelope, log *slog.Logger) {
	if r.ui == nil {
		return
	}
	if shown := r.ui.DisplayedCallID(); shown == "" || shown != env.CallID {
		log.Debug("rejection ignored: not the displayed call")
		return
	}
	r.ui.ShowRejected(env.CallID)
	log.Info("outgoing call rejected")
}

// Presenting is the call id currently on screen, or "".
func (r *Resolver) Presenting() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presenting
}

// Answered moves the presented call into an active call. The device stays busy.
func (r *Resolver) Answered(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.presenting == callID {
		r.presenting = ""
	}
}

// Dismissed closes the presentation without a call (declined or timed out) and clears busy.
// It reports whether callID was the call on screen.
func (r *Resolver) Dismissed(callID string) bool {
	r.mu.Lock()
	if r.presenting != callID {
		r.mu.Unlock()
		return false
	}
	r.presenting = ""
	r.reg.MarkBusy(false)
	r.mu.Unlock()

	r.presenter.Dismiss(callID)
	return true
}

// CallEnded clears busy after an answered call finishes.
func (r *Resolver) CallEnded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.presenting == "" {
		r.reg.MarkBusy(false)
	}
}
