package httpapi

import (
	"errors"
	"net/http"
	"time"

	"coincall/internal/accounts"
	"coincall/internal/audit"
	"coincall/internal/auth"
	"coincall/internal/billing"
	"coincall/internal/calls"
	"coincall/internal/rbac"
	"coincall/internal/reporting"
	"coincall/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth     *auth.Manager
	Calls    *calls.Service
	Billing  *billing.Service
	Accounts accounts.Store
	Audit    *audit.Service
	Reports  *reporting.Service

	// DevTokens enables POST /auth/token. Never set in production.
	DevTokens bool
}

// ClientIP stores the client IP on the request context for audit events.
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(audit.WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}

// --- Auth ---

type tokenRequest struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	DeviceID string `json:"device_id"`
}

// IssueToken hands out a token pair without credentials. Local and dev environments only.
func (h Handlers) IssueToken(c *gin.Context) {
	if !h.DevTokens {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || !rbac.IsValidRole(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and a valid role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role, req.DeviceID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Me ---

func (h Handlers) GetBalance(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	userID, ok := identity(c)
	if !ok {
		return
	}
	bal, err := h.Billing.Balance(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "coin_balance": bal})
}

func (h Handlers) ListLedger(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	userID, ok := identity(c)
	if !ok {
		return
	}
	entries, err := h.Billing.EntriesForUser(c.Request.Context(), userID, 100)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// CoinSummary aggregates the caller's ledger over ?from=&to= (RFC 3339). Defaults to the
// last 30 days.
func (h Handlers) CoinSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	userID, ok := identity(c)
	if !ok {
		return
	}
	to := time.Now().UTC()
	from := to.Add(-30 * 24 * time.Hour)
	var err error
	if raw := c.Query("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
	}
	out, err := h.Reports.CoinSummary(c.Request.Context(), reporting.SummaryRequest{
		UserID: userID,
		Range:  reporting.TimeRange{From: from, To: to},
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func identity(c *gin.Context) (string, bool) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return "", false
	}
	return userID, true
}

// writeError maps domain errors to status codes. The body code is stable for clients.
func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, calls.ErrNotFound), errors.Is(err, billing.ErrNotFound), errors.Is(err, accounts.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, calls.ErrInvalidArgument), errors.Is(err, billing.ErrInvalidArgument), errors.Is(err, accounts.ErrInvalidArgument):
		status, code = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, calls.ErrNotParticipant):
		status, code = http.StatusForbidden, "not_participant"
	case errors.Is(err, calls.ErrWrongParty):
		status, code = http.StatusForbidden, "wrong_party"
	case errors.Is(err, calls.ErrInsufficientCoins):
		status, code = http.StatusPaymentRequired, "insufficient_coins"
	case errors.Is(err, calls.ErrReceiverBusy):
		status, code = http.StatusConflict, "receiver_busy"
	case errors.Is(err, calls.ErrAlreadyTerminal):
		status, code = http.StatusConflict, "already_terminal"
	case errors.Is(err, calls.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, calls.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, billing.ErrSettlementBusy):
		status, code = http.StatusConflict, "settlement_busy"
	case errors.Is(err, billing.ErrBalanceNotApplied):
		// Nothing was written; the same idempotency key can be retried.
		status, code = http.StatusServiceUnavailable, "balance_not_applied"
	}
	if status == http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "err", err)
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}
