package signaling

import (
	"context"
	"log/slog"
	"time"
)

// DefaultFreshnessWindow is how old a pushed INCOMING event may be before it is a stale ring.
const DefaultFreshnessWindow = 20 * time.Second

// PushAdapter turns push payloads into envelopes. Push may be late, duplicated or lost.
type PushAdapter struct {
	sub       Submitter
	freshness time.Duration
	log       *slog.Logger

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewPushAdapter(sub Submitter, freshness time.Duration, log *slog.Logger) *PushAdapter {
	if freshness <= 0 {
		freshness = DefaultFreshnessWindow
	}
	if log == nil {
		log = slog.Default()
	}
	return &PushAdapter{sub: sub, freshness: freshness, log: log.With("channel", string(ChannelPush)), clock: time.Now}
}

// HandleMessage submits one push payload. Malformed and stale payloads are dropped with a
// log line; they are never an error for the transport.
func (a *PushAdapter) HandleMessage(ctx context.Context, fields map[string]string) error {
	env, err := ParsePush(fields)
	if err != nil {
		a.log.Warn("push payload dropped", "err", err)
		return nil
	}

	if env.Type == EventIncoming {
		if age := a.clock().Sub(env.Timestamp); age > a.freshness {
			a.log.Info("stale incoming push dropped",
				"call_id", env.CallID,
				"age", age,
			)
			return nil
		}
	}
	return a.sub.Submit(ctx, env)
}
