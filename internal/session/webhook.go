package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"coincall/internal/calls"
	"coincall/pkg/logger"

	"github.com/gin-gonic/gin"
)

// SignatureHeader carries hex(HMAC-SHA256(body, webhook secret)).
const SignatureHeader = "X-Media-Signature"

const (
	EventPeerJoined = "peer_joined"
	EventPeerLeft   = "peer_left"
)

// MediaEvent is what the media transport posts when a participant joins or leaves.
// When SessionToken is present its claims take precedence over ChannelRef/UserID.
type MediaEvent struct {
	Event        string    `json:"event"`
	ChannelRef   string    `json:"channel_ref"`
	UserID       string    `json:"user_id"`
	SessionToken string    `json:"session_token,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// CallEvents is the part of the call lifecycle driven by the media transport.
type CallEvents interface {
	ReceiverJoined(ctx context.Context, callID, userID string, at time.Time) (calls.CallRecord, error)
	PeerLeft(ctx context.Context, callID, userID string, at time.Time) (calls.CallRecord, error)
}

// WebhookHandler converts media transport callbacks into lifecycle transitions.
// No business logic here.
type WebhookHandler struct {
	Calls  CallEvents
	Issuer *Issuer
	Secret string

	Now func() time.Time
}

func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (h WebhookHandler) HandleMediaEvent(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	if h.Secret != "" {
		got := strings.TrimSpace(c.GetHeader(SignatureHeader))
		if !hmac.Equal([]byte(got), []byte(Sign(h.Secret, body))) {
			log.Warn("media webhook signature mismatch")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad signature"})
			return
		}
	}

	var ev MediaEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if ev.SessionToken != "" && h.Issuer != nil {
		claims, err := h.Issuer.Verify(ev.SessionToken, h.Now())
		if err != nil {
			log.Warn("media webhook token rejected", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
			return
		}
		ev.ChannelRef = claims.ChannelRef
		ev.UserID = claims.UserID
	}
	if ev.ChannelRef == "" || ev.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "channel_ref and user_id required"})
		return
	}
	// The transport clock is not trusted past ours: a future join would shrink billable time.
	at, now := ev.OccurredAt, h.Now()
	if at.IsZero() || at.After(now) {
		at = now
	}

	ctx := c.Request.Context()
	var rec calls.CallRecord
	switch ev.Event {
	case EventPeerJoined:
		rec, err = h.Calls.ReceiverJoined(ctx, ev.ChannelRef, ev.UserID, at)
	case EventPeerLeft:
		rec, err = h.Calls.PeerLeft(ctx, ev.ChannelRef, ev.UserID, at)
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown event"})
		return
	}

	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": rec.Status})
	case errors.Is(err, calls.ErrAlreadyTerminal), errors.Is(err, calls.ErrWrongParty):
		// The caller joining, or an event after the call ended, changes nothing.
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown channel"})
	case errors.Is(err, calls.ErrNotParticipant):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a participant"})
	default:
		log.Error("media event failed", "event", ev.Event, "channel_ref", ev.ChannelRef, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "media event failed"})
	}
}
