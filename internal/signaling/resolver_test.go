package signaling

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestResolve_OnePresentationAcrossAllChannels(t *testing.T) {
	p := newFakePresenter()
	r, _ := newTestResolver(p)
	ctx := context.Background()

	actions := []Action{
		r.Resolve(ctx, incoming("c1", ChannelPush)),
		r.Resolve(ctx, incoming("c1", ChannelForeground)),
		r.Resolve(ctx, incoming("c1", ChannelPolling)),
	}
	if actions[0] != Present || actions[1] != Suppress || actions[2] != Suppress {
		t.Fatalf("unexpected actions: %v", actions)
	}
	if got := p.presentedCount("c1"); got != 1 {
		t.Fatalf("expected 1 presentation, got %d", got)
	}
}

func TestResolve_CancelBeforeIncomingSuppresses(t *testing.T) {
	p := newFakePresenter()
	b := &fakeBroadcaster{}
	reg := NewRegistry(16)
	r := NewResolver(reg, p, ResolverOptions{Broadcaster: b})
	ctx := context.Background()

	cancelled := incoming("c1", ChannelPush)
	cancelled.Type = EventCancelled
	if got := r.Resolve(ctx, cancelled); got != Suppress {
		t.Fatalf("cancel must resolve to suppress, got %v", got)
	}
	if got := r.Resolve(ctx, incoming("c1", ChannelPolling)); got != Suppress {
		t.Fatalf("late incoming must be suppressed, got %v", got)
	}
	if p.presentedCount("c1") != 0 {
		t.Fatalf("cancelled call must never be presented")
	}
	if len(b.closed) != 1 || b.closed[0] != "c1" {
		t.Fatalf("close must be broadcast even without a prior incoming, got %v", b.closed)
	}
}

func TestResolve_CancelStopsActivePresentation(t *testing.T) {
	p := newFakePresenter()
	r, reg := newTestResolver(p)
	ctx := context.Background()

	r.Resolve(ctx, incoming("c1", ChannelPush))
	if !reg.IsBusy() || r.Presenting() != "c1" {
		t.Fatalf("presenting call must mark the device busy")
	}

	cancel := incoming("c1", ChannelPush)
	cancel.Type = EventCancelled
	r.Resolve(ctx, cancel)
	if reg.IsBusy() || r.Presenting() != "" {
		t.Fatalf("cancel must clear the presentation and busy flag")
	}
	if p.dismissedCount("c1") != 1 {
		t.Fatalf("expected dismissal")
	}
}

func TestResolve_BusySuppressesWithoutMarking(t *testing.T) {
	p := newFakePresenter()
	r, reg := newTestResolver(p)
	ctx := context.Background()

	reg.MarkBusy(true)
	if got := r.Resolve(ctx, incoming("c2", ChannelPush)); got != Suppress {
		t.Fatalf("expected suppress while busy, got %v", got)
	}
	if reg.IsProcessed("c2") {
		t.Fatalf("busy suppression must not mark processed")
	}

	reg.MarkBusy(false)
	if got := r.Resolve(ctx, incoming("c2", ChannelPolling)); got != Present {
		t.Fatalf("call must be presentable once busy clears, got %v", got)
	}
}

func TestResolve_FailedPresentationStaysEligible(t *testing.T) {
	p := newFakePresenter()
	p.setFail(true)
	r, reg := newTestResolver(p)
	ctx := context.Background()

	if got := r.Resolve(ctx, incoming("c3", ChannelPush)); got != Suppress {
		t.Fatalf("expected suppress on failure, got %v", got)
	}
	if reg.IsProcessed("c3") || reg.IsBusy() {
		t.Fatalf("failed presentation must not mark processed or busy")
	}

	p.setFail(false)
	if got := r.Resolve(ctx, incoming("c3", ChannelPolling)); got != Present {
		t.Fatalf("another channel must be able to retry, got %v", got)
	}
}

func TestResolve_RejectedOnlyForDisplayedCall(t *testing.T) {
	ui := &fakeCallUI{displayed: "out-1"}
	r := NewResolver(NewRegistry(4), newFakePresenter(), ResolverOptions{ActiveCallUI: ui})
	ctx := context.Background()

	other := Envelope{CallID: "out-0", Type: EventRejected}
	r.Resolve(ctx, other)
	if len(ui.rejected) != 0 {
		t.Fatalf("rejection for another call must be ignored")
	}
	r.Resolve(ctx, Envelope{CallID: "out-1", Type: EventRejected})
	if len(ui.rejected) != 1 || ui.rejected[0] != "out-1" {
		t.Fatalf("expected rejection to surface, got %v", ui.rejected)
	}
}

// Push starts presenting C1 but the permission check is slow; polling sees C1 ringing a
// moment later. Only one presentation may happen.
func TestResolve_SlowPresentationRace(t *testing.T) {
	p := newFakePresenter()
	p.delay = 80 * time.Millisecond
	r, _ := newTestResolver(p)
	hub, results, stop := runHub(r)
	defer stop()
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = hub.Submit(ctx, incoming("C1", ChannelPush))
	}()
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		_ = hub.Submit(ctx, incoming("C1", ChannelPolling))
	}()
	wg.Wait()

	presents := 0
	for i := 0; i < 2; i++ {
		select {
		case a := <-results:
			if a == Present {
				presents++
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for resolution %d", i)
		}
	}
	if presents != 1 || p.presentedCount("C1") != 1 {
		t.Fatalf("expected exactly one presentation, got %d/%d", presents, p.presentedCount("C1"))
	}
}

func TestResolve_ConcurrentDirectCallsSerialize(t *testing.T) {
	p := newFakePresenter()
	p.delay = 20 * time.Millisecond
	r, _ := newTestResolver(p)

	var wg sync.WaitGroup
	for _, ch := range []Channel{ChannelPush, ChannelForeground, ChannelPolling} {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			r.Resolve(context.Background(), incoming("c4", ch))
		}(ch)
	}
	wg.Wait()
	if got := p.presentedCount("c4"); got != 1 {
		t.Fatalf("expected 1 presentation, got %d", got)
	}
}

func TestResolver_DismissedClearsBusy(t *testing.T) {
	p := newFakePresenter()
	r, reg := newTestResolver(p)
	r.Resolve(context.Background(), incoming("c5", ChannelPush))

	if r.Dismissed("other") {
		t.Fatalf("dismissing a call not on screen must report false")
	}
	if !r.Dismissed("c5") || reg.IsBusy() {
		t.Fatalf("dismiss must clear busy")
	}

	r.Resolve(context.Background(), incoming("c6", ChannelPush))
	r.Answered("c6")
	if !reg.IsBusy() {
		t.Fatalf("answered call keeps the device busy")
	}
	r.CallEnded()
	if reg.IsBusy() {
		t.Fatalf("ended call must clear busy")
	}
}
