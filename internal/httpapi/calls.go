package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"coincall/internal/calls"
	"coincall/pkg/logger"

	"github.com/gin-gonic/gin"
)

// --- Calls ---

func (h Handlers) InitiateCall(c *gin.Context) {
	if !h.callsReady(c) {
		return
	}
	userID, ok := identity(c)
	if !ok {
		return
	}
	var req calls.InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req.CallerID = userID
	if req.CallerName == "" {
		req.CallerName = h.displayName(c.Request.Context(), userID)
	}

	rec, err := h.Calls.Initiate(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

type ringingCall struct {
	CallID     string       `json:"call_id"`
	CallerID   string       `json:"caller_id"`
	CallerName string       `json:"caller_name,omitempty"`
	Medium     calls.Medium `json:"medium"`
	ChannelRef string       `json:"channel_ref"`
	CreatedAt  time.Time    `json:"created_at"`
}

// ListRinging is the polling backstop: calls still ringing for the receiver, newest first.
func (h Handlers) ListRinging(c *gin.Context) {
	if !h.callsReady(c) {
		return
	}
	userID, ok := identity(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	recs, err := h.Calls.RingingFor(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	names := map[string]string{}
	out := make([]ringingCall, 0, len(recs))
	for _, r := range recs {
		name, seen := names[r.CallerID]
		if !seen {
			name = h.displayName(ctx, r.CallerID)
			names[r.CallerID] = name
		}
		out = append(out, ringingCall{
			CallID:     r.ID,
			CallerID:   r.CallerID,
			CallerName: name,
			Medium:     r.Medium,
			ChannelRef: r.ChannelRef(),
			CreatedAt:  r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"calls": out})
}

func (h Handlers) GetCall(c *gin.Context) {
	if h.callsReady(c) {
		serveCall(c, h.Calls.Get)
	}
}

// SessionToken returns the media session entry for a participant. The first request on a
// PENDING call moves it to CONNECTING.
func (h Handlers) SessionToken(c *gin.Context) {
	if h.callsReady(c) {
		serveCall(c, h.Calls.Join)
	}
}

// ReportJoined is the device's own report that the receiver entered the media session.
// The caller reporting a join changes nothing.
func (h Handlers) ReportJoined(c *gin.Context) {
	if !h.callsReady(c) {
		return
	}
	serveCall(c, func(ctx context.Context, callID, userID string) (calls.CallRecord, error) {
		// A zero time lets the service stamp the join with its own clock.
		rec, err := h.Calls.ReceiverJoined(ctx, callID, userID, time.Time{})
		if errors.Is(err, calls.ErrWrongParty) {
			return h.Calls.Get(ctx, callID, userID)
		}
		return rec, err
	})
}

func (h Handlers) RejectCall(c *gin.Context) {
	if h.callsReady(c) {
		serveCall(c, h.Calls.Reject)
	}
}

func (h Handlers) CancelCall(c *gin.Context) {
	if h.callsReady(c) {
		serveCall(c, h.Calls.Cancel)
	}
}

func (h Handlers) EndCall(c *gin.Context) {
	if h.callsReady(c) {
		serveCall(c, h.Calls.End)
	}
}

// ReportMissed is sent by a device whose ring timer expired without an answer.
func (h Handlers) ReportMissed(c *gin.Context) {
	if h.callsReady(c) {
		serveCall(c, h.Calls.Miss)
	}
}

func (h Handlers) callsReady(c *gin.Context) bool {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return false
	}
	return true
}

func serveCall[T any](c *gin.Context, fn func(ctx context.Context, callID, userID string) (T, error)) {
	userID, ok := identity(c)
	if !ok {
		return
	}
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}
	out, err := fn(c.Request.Context(), callID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) displayName(ctx context.Context, userID string) string {
	if h.Accounts == nil {
		return ""
	}
	acct, err := h.Accounts.Get(ctx, userID)
	if err != nil {
		logger.From(ctx).Debug("display name lookup failed", "user_id", userID, "err", err)
		return ""
	}
	return acct.DisplayName
}
