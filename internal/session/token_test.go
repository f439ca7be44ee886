package session

import (
	"testing"
	"time"

	"coincall/internal/config"
)

func TestIssuer_RoundTrip(t *testing.T) {
	iss, err := NewIssuer(config.MediaConfig{TokenSecret: "s3cret", TokenTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	now := time.Unix(1700000000, 0)

	tok, err := iss.Issue("call-1", "bob", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := iss.Verify(tok, now.Add(10*time.Second))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.ChannelRef != "call-1" || claims.UserID != "bob" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := iss.Verify(tok, now.Add(2*time.Minute)); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestIssuer_RejectsForeignSecret(t *testing.T) {
	a, _ := NewIssuer(config.MediaConfig{TokenSecret: "a"})
	b, _ := NewIssuer(config.MediaConfig{TokenSecret: "b"})
	now := time.Now()
	tok, err := a.Issue("call-1", "bob", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := b.Verify(tok, now); err == nil {
		t.Fatalf("expected signature failure")
	}
	if _, err := NewIssuer(config.MediaConfig{}); err == nil {
		t.Fatalf("expected missing secret error")
	}
}
