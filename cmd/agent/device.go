package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"coincall/internal/session"
	"coincall/internal/signaling"
)

// callAPI is the part of the signaling client the device needs to take a call.
type callAPI interface {
	FetchToken(ctx context.Context, callID string) (signaling.Ticket, error)
	ReportJoined(ctx context.Context, callID string) error
	End(ctx context.Context, callID string) error
}

// device is the headless stand-in for the incoming call screen.
type device struct {
	api         callAPI
	transport   session.Transport
	autoAnswer  bool
	hangUpAfter time.Duration
	log         *slog.Logger

	// Set after construction; the resolver and the foreground service both need the device.
	resolver *signaling.Resolver
	fg       *signaling.ForegroundService
	poller   *signaling.Poller

	ctx context.Context
	wg  sync.WaitGroup
}

func (d *device) Present(_ context.Context, env signaling.Envelope) error {
	d.log.Info("incoming call ringing",
		"call_id", env.CallID,
		"caller_id", env.CallerID,
		"caller_name", env.CallerName,
		"medium", env.Medium,
		"display", string(env.Display),
	)
	d.poller.Pause()
	if d.autoAnswer {
		d.wg.Add(1)
		go d.answer(env)
	}
	return nil
}

func (d *device) Dismiss(callID string) {
	d.fg.Stop(callID)
	d.poller.Resume()
	d.log.Info("incoming call dismissed", "call_id", callID)
}

func (d *device) BroadcastClose(callID string) {
	d.log.Debug("close broadcast", "call_id", callID)
}

func (d *device) answer(env signaling.Envelope) {
	defer d.wg.Done()
	ctx := d.ctx
	log := d.log.With("call_id", env.CallID)

	d.fg.Stop(env.CallID)
	d.resolver.Answered(env.CallID)
	defer func() {
		d.resolver.CallEnded()
		d.poller.Resume()
	}()

	ticket := signaling.Ticket{ChannelRef: env.ChannelRef, SessionToken: env.SessionToken}
	if ticket.SessionToken == "" || ticket.ChannelRef == "" {
		t, err := d.api.FetchToken(ctx, env.CallID)
		if err != nil {
			log.Warn("fetch session token failed", "err", err)
			return
		}
		ticket = t
	}
	if err := d.transport.Join(ctx, ticket.ChannelRef, ticket.SessionToken); err != nil {
		log.Warn("media join failed", "err", err)
		return
	}
	if err := d.api.ReportJoined(ctx, env.CallID); err != nil {
		log.Warn("report joined failed", "err", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(d.hangUpAfter):
	}
	bg := context.WithoutCancel(ctx)
	_ = d.transport.Leave(bg, ticket.ChannelRef)
	if err := d.api.End(bg, env.CallID); err != nil {
		log.Warn("end call failed", "err", err)
	}
}

// waker routes INCOMING envelopes from push and polling through the foreground service so
// every ring is bounded by the ring timeout. Other events go straight to the hub.
type waker struct {
	hub    signaling.Submitter
	fg     *signaling.ForegroundService
	grants signaling.Grants
}

func (w waker) Submit(ctx context.Context, env signaling.Envelope) error {
	if env.Type == signaling.EventIncoming {
		return w.fg.Start(ctx, env, w.grants)
	}
	return w.hub.Submit(ctx, env)
}
