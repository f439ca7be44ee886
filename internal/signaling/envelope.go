package signaling

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type EventType string

const (
	EventIncoming  EventType = "INCOMING"
	EventCancelled EventType = "CANCELLED"
	EventRejected  EventType = "REJECTED"
)

// Channel names the delivery path an envelope arrived on.
type Channel string

const (
	ChannelPush       Channel = "push"
	ChannelForeground Channel = "foreground_service"
	ChannelPolling    Channel = "polling"
)

// DisplayMode is how the incoming call is rendered.
type DisplayMode string

const (
	DisplayFullScreen DisplayMode = "full_screen"
	// DisplayMinimal is a plain notification, used when full-screen capability is missing.
	DisplayMinimal DisplayMode = "minimal"
)

// Envelope is the normalized form of an event from any delivery channel.
type Envelope struct {
	CallID       string
	Type         EventType
	CallerID     string
	CallerName   string
	Medium       string
	SessionToken string
	ChannelRef   string
	Timestamp    time.Time

	Source  Channel
	Display DisplayMode
}

// Push payload keys.
const (
	FieldType         = "type"
	FieldCallID       = "callId"
	FieldCallerID     = "callerId"
	FieldCallerName   = "callerName"
	FieldChannelRef   = "channelRef"
	FieldSessionToken = "sessionToken"
	FieldMedium       = "medium"
	FieldTimestamp    = "timestamp"
)

var ErrMalformedEnvelope = errors.New("signaling: malformed envelope")

// ParsePush decodes a push key/value payload. sessionToken is optional.
func ParsePush(fields map[string]string) (Envelope, error) {
	env := Envelope{
		CallID:       strings.TrimSpace(fields[FieldCallID]),
		Type:         EventType(strings.ToUpper(strings.TrimSpace(fields[FieldType]))),
		CallerID:     fields[FieldCallerID],
		CallerName:   fields[FieldCallerName],
		Medium:       fields[FieldMedium],
		SessionToken: fields[FieldSessionToken],
		ChannelRef:   fields[FieldChannelRef],
		Source:       ChannelPush,
	}
	if env.CallID == "" {
		return Envelope{}, fmt.Errorf("%w: missing %s", ErrMalformedEnvelope, FieldCallID)
	}
	switch env.Type {
	case EventIncoming, EventCancelled, EventRejected:
	default:
		return Envelope{}, fmt.Errorf("%w: unknown type %q", ErrMalformedEnvelope, fields[FieldType])
	}

	ts, err := parseTimestamp(fields[FieldTimestamp])
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	env.Timestamp = ts
	if env.ChannelRef == "" {
		env.ChannelRef = env.CallID
	}
	return env, nil
}

// EncodePush is the inverse of ParsePush. Timestamps travel as unix milliseconds.
func EncodePush(env Envelope) map[string]string {
	out := map[string]string{
		FieldType:       string(env.Type),
		FieldCallID:     env.CallID,
		FieldCallerID:   env.CallerID,
		FieldCallerName: env.CallerName,
		FieldChannelRef: env.ChannelRef,
		FieldMedium:     env.Medium,
		FieldTimestamp:  strconv.FormatInt(env.Timestamp.UnixMilli(), 10),
	}
	if env.SessionToken != "" {
		out[FieldSessionToken] = env.SessionToken
	}
	return out
}

// parseTimestamp accepts unix milliseconds or RFC 3339.
func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q", raw)
	}
	return ts.UTC(), nil
}
