package session

import (
	"context"
	"errors"
	"log/slog"
)

// Transport is the device side of the media session.
type Transport interface {
	Join(ctx context.Context, channelRef, token string) error
	Leave(ctx context.Context, channelRef string) error
}

// LogTransport stands in for a media SDK on headless devices: it validates inputs and logs.
type LogTransport struct {
	Log *slog.Logger
}

func (t LogTransport) Join(ctx context.Context, channelRef, token string) error {
	if channelRef == "" || token == "" {
		return errors.New("session: channel_ref and token required to join")
	}
	t.logger().Info("media session joined", "channel_ref", channelRef)
	return nil
}

func (t LogTransport) Leave(ctx context.Context, channelRef string) error {
	t.logger().Info("media session left", "channel_ref", channelRef)
	return nil
}

func (t LogTransport) logger() *slog.Logger {
	if t.Log != nil {
		return t.Log
	}
	return slog.Default()
}
