package signaling

import (
	"errors"
	"testing"
	"time"
)

func TestParsePush_RoundTripWithoutToken(t *testing.T) {
	ts := time.UnixMilli(1767225600123).UTC()
	in := Envelope{
		CallID:     "c1",
		Type:       EventIncoming,
		CallerID:   "alice",
		CallerName: "Alice",
		Medium:     "VIDEO",
		ChannelRef: "c1",
		Timestamp:  ts,
	}
	fields := EncodePush(in)
	if _, ok := fields[FieldSessionToken]; ok {
		t.Fatalf("empty token must be omitted")
	}

	got, err := ParsePush(fields)
	if err != nil {
		t.Fatalf("ParsePush: %v", err)
	}
	if got.CallID != "c1" || got.Type != EventIncoming || !got.Timestamp.Equal(ts) || got.Source != ChannelPush {
		t.Fatalf("unexpected envelope: %+v", got)
	}
}

func TestParsePush_AcceptsRFC3339AndDefaultsChannelRef(t *testing.T) {
	got, err := ParsePush(map[string]string{
		FieldCallID:    "c9",
		FieldType:      "cancelled",
		FieldTimestamp: "2026-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("ParsePush: %v", err)
	}
	if got.Type != EventCancelled || got.ChannelRef != "c9" {
		t.Fatalf("unexpected envelope: %+v", got)
	}
}

func TestParsePush_Malformed(t *testing.T) {
	cases := []map[string]string{
		{FieldType: "INCOMING", FieldTimestamp: "1"},
		{FieldCallID: "c1", FieldType: "RINGING", FieldTimestamp: "1"},
		{FieldCallID: "c1", FieldType: "INCOMING"},
		{FieldCallID: "c1", FieldType: "INCOMING", FieldTimestamp: "yesterday"},
	}
	for i, fields := range cases {
		if _, err := ParsePush(fields); !errors.Is(err, ErrMalformedEnvelope) {
			t.Fatalf("case %d: expected ErrMalformedEnvelope, got %v", i, err)
		}
	}
}
