package httpapi

import (
	"net/http"
	"strconv"

	"coincall/internal/audit"
	"coincall/internal/auth"
	"coincall/internal/billing"
	"coincall/pkg/logger"

	"github.com/gin-gonic/gin"
)

// --- Admin ---

// AdminAdjust records a REFUND or BONUS ledger entry. Balances only ever move through the
// ledger.
func (h Handlers) AdminAdjust(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	adminUserID, _ := auth.UserID(c.Request.Context())
	adminRole, _ := auth.Role(c.Request.Context())

	var req billing.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if idem := c.GetHeader("Idempotency-Key"); req.IdempotencyKey == "" && idem != "" {
		req.IdempotencyKey = idem
	}

	adj, entry, err := h.Billing.Adjust(c.Request.Context(), adminUserID, adminRole, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"adjustment": adj, "entry": entry})
}

// AdminReconcile rebuilds a user's cached balance from the ledger.
func (h Handlers) AdminReconcile(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	ctx := c.Request.Context()
	userID := c.Param("user_id")
	bal, err := h.Billing.Reconcile(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.Audit != nil {
		adminUserID, _ := auth.UserID(ctx)
		adminRole, _ := auth.Role(ctx)
		if err := h.Audit.LogReconcile(ctx, adminUserID, adminRole, userID, bal); err != nil {
			logger.FromGin(c).Warn("audit reconcile failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "coin_balance": bal})
}

// AdminGetCall is the read-only view of a call with its ledger entries.
func (h Handlers) AdminGetCall(c *gin.Context) {
	if !h.callsReady(c) {
		return
	}
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	ctx := c.Request.Context()
	callID := c.Param("call_id")
	rec, err := h.Calls.Lookup(ctx, callID)
	if err != nil {
		writeError(c, err)
		return
	}
	entries, err := h.Billing.EntriesForCall(ctx, callID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call": rec, "entries": entries})
}

func (h Handlers) AdminListAudit(c *gin.Context) {
	if h.Audit == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audit not configured"})
		return
	}
	f := audit.Filter{
		Type:   audit.EventType(c.Query("type")),
		CallID: c.Query("call_id"),
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		f.Limit = n
	}
	events, err := h.Audit.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
