package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"coincall/internal/calls"
	"coincall/internal/config"

	"github.com/gin-gonic/gin"
)

type stubProfiles struct{}

func (stubProfiles) GetBalance(context.Context, string) (int64, error)  { return 100, nil }
func (stubProfiles) GetCallRate(context.Context, string) (int64, error) { return 10, nil }

type zeroSettler struct{}

func (zeroSettler) Settle(_ context.Context, rec calls.CallRecord) (calls.Settlement, error) {
	return calls.Settlement{BillableSeconds: rec.BillableSeconds()}, nil
}

func setupWebhook(t *testing.T) (*gin.Engine, *calls.Service, *Issuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	iss, err := NewIssuer(config.MediaConfig{TokenSecret: "media"})
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	svc := calls.NewService(calls.Deps{
		Repo:     calls.NewMemoryRepo(),
		Profiles: stubProfiles{},
		Settler:  zeroSettler{},
		Sessions: iss,
	})

	r := gin.New()
	h := WebhookHandler{Calls: svc, Issuer: iss, Secret: "hook"}
	r.POST("/webhooks/media", h.HandleMediaEvent)
	return r, svc, iss
}

func post(r *gin.Engine, secret string, ev MediaEvent) *httptest.ResponseRecorder {
	body, _ := json.Marshal(ev)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/media", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhook_PeerJoinedThenLeft(t *testing.T) {
	r, svc, _ := setupWebhook(t)
	ctx := context.Background()
	rec, err := svc.Initiate(ctx, calls.InitiateRequest{CallerID: "alice", ReceiverID: "bob", Medium: calls.MediumAudio})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	// Caller joining the channel is not a receiver join.
	if w := post(r, "hook", MediaEvent{Event: EventPeerJoined, ChannelRef: rec.ID, UserID: "alice"}); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got, _ := svc.Lookup(ctx, rec.ID); got.Status != calls.StatusPending {
		t.Fatalf("caller join must not start the call, got %s", got.Status)
	}

	w := post(r, "hook", MediaEvent{Event: EventPeerJoined, ChannelRef: rec.ID, UserID: "bob", OccurredAt: time.Now()})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got, _ := svc.Lookup(ctx, rec.ID); got.Status != calls.StatusOngoing || got.ReceiverJoinedAt == nil {
		t.Fatalf("expected ONGOING with join time, got %+v", got)
	}

	if w := post(r, "hook", MediaEvent{Event: EventPeerLeft, ChannelRef: rec.ID, UserID: "alice"}); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got, _ := svc.Lookup(ctx, rec.ID); got.Status != calls.StatusEnded {
		t.Fatalf("expected ENDED, got %s", got.Status)
	}

	// The second peer leaving is a no-op.
	w = post(r, "hook", MediaEvent{Event: EventPeerLeft, ChannelRef: rec.ID, UserID: "bob"})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ignored") {
		t.Fatalf("expected ignored, got %d %s", w.Code, w.Body.String())
	}
}

func TestWebhook_TokenClaimsIdentifyPeer(t *testing.T) {
	r, svc, iss := setupWebhook(t)
	ctx := context.Background()
	rec, err := svc.Initiate(ctx, calls.InitiateRequest{CallerID: "alice", ReceiverID: "bob", Medium: calls.MediumVideo})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	tok, _ := iss.Issue(rec.ID, "bob", time.Now())

	w := post(r, "hook", MediaEvent{Event: EventPeerJoined, SessionToken: tok})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got, _ := svc.Lookup(ctx, rec.ID); got.Status != calls.StatusOngoing {
		t.Fatalf("expected ONGOING, got %s", got.Status)
	}

	if w := post(r, "hook", MediaEvent{Event: EventPeerJoined, SessionToken: "garbage"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", w.Code)
	}
}

func TestWebhook_RejectsBadSignatureAndUnknownChannel(t *testing.T) {
	r, _, _ := setupWebhook(t)

	if w := post(r, "wrong", MediaEvent{Event: EventPeerJoined, ChannelRef: "x", UserID: "bob"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w := post(r, "hook", MediaEvent{Event: EventPeerJoined, ChannelRef: "missing", UserID: "bob"}); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := post(r, "hook", MediaEvent{Event: "peer_muted", ChannelRef: "x", UserID: "bob"}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestWebhook_ClampsFutureOccurredAt(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := calls.NewService(calls.Deps{
		Repo:     calls.NewMemoryRepo(),
		Profiles: stubProfiles{},
		Settler:  zeroSettler{},
		Clock:    func() time.Time { return now },
	})
	r := gin.New()
	h := WebhookHandler{Calls: svc, Secret: "hook", Now: func() time.Time { return now }}
	r.POST("/webhooks/media", h.HandleMediaEvent)

	ctx := context.Background()
	rec, err := svc.Initiate(ctx, calls.InitiateRequest{CallerID: "alice", ReceiverID: "bob", Medium: calls.MediumAudio})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	w := post(r, "hook", MediaEvent{Event: EventPeerJoined, ChannelRef: rec.ID, UserID: "bob", OccurredAt: now.Add(10 * time.Minute)})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got, _ := svc.Lookup(ctx, rec.ID)
	if got.ReceiverJoinedAt == nil || !got.ReceiverJoinedAt.Equal(now) {
		t.Fatalf("expected join clamped to %v, got %v", now, got.ReceiverJoinedAt)
	}
}
