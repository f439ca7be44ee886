package push

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"coincall/internal/calls"
	"coincall/internal/signaling"
)

type published struct {
	exchange, key string
	body          []byte
}

type capturePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *capturePublisher) Publish(_ context.Context, exchange, key string, body any) error {
	if p.err != nil {
		return p.err
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{exchange: exchange, key: key, body: raw})
	return nil
}

func (p *capturePublisher) Close() {}

type captureHandler struct {
	got []map[string]string
}

func (h *captureHandler) HandleMessage(_ context.Context, fields map[string]string) error {
	h.got = append(h.got, fields)
	return nil
}

func TestNotifier_PublishesDecodablePayload(t *testing.T) {
	pub := &capturePublisher{}
	n := NewNotifier(pub, "")
	ts := time.UnixMilli(1700000000123).UTC()

	err := n.Notify(context.Background(), "bob", calls.Signal{
		Type:         calls.SignalIncoming,
		CallID:       "call-1",
		CallerID:     "alice",
		CallerName:   "Alice",
		Medium:       calls.MediumVideo,
		ChannelRef:   "call-1",
		SessionToken: "tok",
		Timestamp:    ts,
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.msgs))
	}
	m := pub.msgs[0]
	if m.exchange != DefaultExchange || m.key != "device.bob" {
		t.Fatalf("unexpected route %s/%s", m.exchange, m.key)
	}

	// Round trip through the device side.
	h := &captureHandler{}
	if !Deliveries(h)(context.Background(), m.body) {
		t.Fatalf("expected ack")
	}
	env, err := signaling.ParsePush(h.got[0])
	if err != nil {
		t.Fatalf("ParsePush: %v", err)
	}
	if env.CallID != "call-1" || env.Type != signaling.EventIncoming || env.SessionToken != "tok" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if !env.Timestamp.Equal(ts) {
		t.Fatalf("timestamp drifted: %s vs %s", env.Timestamp, ts)
	}
}

func TestNotifier_Errors(t *testing.T) {
	n := NewNotifier(&capturePublisher{err: errors.New("broker down")}, "x")
	if err := n.Notify(context.Background(), "bob", calls.Signal{CallID: "c"}); err == nil {
		t.Fatalf("expected publish error")
	}
	if err := n.Notify(context.Background(), "", calls.Signal{CallID: "c"}); err == nil {
		t.Fatalf("expected user id error")
	}
}

func TestDeliveries_DropsGarbage(t *testing.T) {
	h := &captureHandler{}
	if !Deliveries(h)(context.Background(), []byte("not json")) {
		t.Fatalf("garbage should be acked")
	}
	if len(h.got) != 0 {
		t.Fatalf("garbage must not reach the adapter")
	}
}
