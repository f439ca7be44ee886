package main

import (
	"net/http"

	"coincall/internal/auth"
	"coincall/internal/httpapi"
	"coincall/internal/session"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, webhook session.WebhookHandler, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Media transport callbacks, authenticated by X-Media-Signature.
	r.POST("/webhooks/media", webhook.HandleMediaEvent)

	// Dev-only token issuance; 404 unless enabled.
	h.RegisterPublic(r)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role, "device_id": auth.DeviceID(c.Request.Context())})
		})
		h.Register(v1)
	}
}
