package push

import (
	"context"
	"encoding/json"
	"errors"

	"coincall/internal/calls"
	"coincall/internal/signaling"
	"coincall/pkg/logger"
	"coincall/pkg/rabbitmq"
)

const DefaultExchange = "call_signals"

// RoutingKey addresses every device of one user.
func RoutingKey(userID string) string { return "device." + userID }

// Notifier publishes call signals as push payloads on a topic exchange.
type Notifier struct {
	pub      rabbitmq.Publisher
	exchange string
}

func NewNotifier(pub rabbitmq.Publisher, exchange string) *Notifier {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Notifier{pub: pub, exchange: exchange}
}

func (n *Notifier) Notify(ctx context.Context, userID string, sig calls.Signal) error {
	if userID == "" {
		return errors.New("push: user id required")
	}
	payload := signaling.EncodePush(Envelope(sig))
	if err := n.pub.Publish(ctx, n.exchange, RoutingKey(userID), payload); err != nil {
		return err
	}
	logger.ForCall(ctx, sig.CallID).Debug("signal published",
		"signal", string(sig.Type),
		"user_id", userID,
	)
	return nil
}

// Envelope maps a server signal onto the device envelope.
func Envelope(sig calls.Signal) signaling.Envelope {
	return signaling.Envelope{
		CallID:       sig.CallID,
		Type:         signaling.EventType(sig.Type),
		CallerID:     sig.CallerID,
		CallerName:   sig.CallerName,
		Medium:       string(sig.Medium),
		SessionToken: sig.SessionToken,
		ChannelRef:   sig.ChannelRef,
		Timestamp:    sig.Timestamp,
		Source:       signaling.ChannelPush,
	}
}

// MessageHandler is the device side: it decodes a published payload and hands it to
// the push adapter. Undecodable bodies are acked and dropped.
type MessageHandler interface {
	HandleMessage(ctx context.Context, fields map[string]string) error
}

func Deliveries(h MessageHandler) rabbitmq.Handler {
	return func(ctx context.Context, body []byte) bool {
		var fields map[string]string
		if err := json.Unmarshal(body, &fields); err != nil {
			logger.From(ctx).Warn("push body dropped", "err", err)
			return true
		}
		// Submit only fails once the hub is closed; requeueing would not help.
		if err := h.HandleMessage(ctx, fields); err != nil {
			logger.From(ctx).Warn("push delivery failed", "err", err)
		}
		return true
	}
}
