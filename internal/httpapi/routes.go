package httpapi

import (
	"coincall/internal/rbac"

	"github.com/gin-gonic/gin"
)

// RegisterPublic wires routes that need no bearer token.
func (h Handlers) RegisterPublic(r gin.IRouter) {
	r.POST("/auth/token", h.IssueToken)
}

// Register wires the authenticated API onto v1. The group must already verify access tokens.
func (h Handlers) Register(v1 *gin.RouterGroup) {
	me := v1.Group("/me")
	{
		me.GET("/balance", h.GetBalance)
		me.GET("/ledger", h.ListLedger)
		me.GET("/summary", h.CoinSummary)
	}

	calls := v1.Group("/calls")
	calls.Use(rbac.RequireAnyRole(rbac.RoleCaller, rbac.RoleReceiver))
	{
		calls.POST("", rbac.RequireAnyRole(rbac.RoleCaller), h.InitiateCall)
		calls.GET("/ringing", h.ListRinging)
		calls.GET("/:call_id", h.GetCall)
		calls.GET("/:call_id/token", h.SessionToken)
		calls.POST("/:call_id/joined", h.ReportJoined)
		calls.POST("/:call_id/reject", h.RejectCall)
		calls.POST("/:call_id/cancel", h.CancelCall)
		calls.POST("/:call_id/end", h.EndCall)
		calls.POST("/:call_id/missed", h.ReportMissed)
	}

	admin := v1.Group("/admin")
	admin.Use(rbac.RequireAdmin())
	{
		admin.POST("/adjustments", h.AdminAdjust)
		admin.POST("/users/:user_id/reconcile", h.AdminReconcile)
		admin.GET("/calls/:call_id", h.AdminGetCall)
		admin.GET("/audit", h.AdminListAudit)
	}
}
