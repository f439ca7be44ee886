package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"coincall/internal/auth"

	"github.com/gin-gonic/gin"
)

func serveWithRole(role string, mw gin.HandlerFunc) int {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		if role != "" {
			ctx := auth.WithIdentity(c.Request.Context(), "u", role, "")
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}, mw, func(c *gin.Context) {
		c.Status(200)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_AdminBypasses(t *testing.T) {
	if code := serveWithRole(RoleAdmin, RequireAnyRole(RoleCaller)); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_DeniesOtherRoles(t *testing.T) {
	if code := serveWithRole(RoleReceiver, RequireAnyRole(RoleCaller)); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_RoleRequired(t *testing.T) {
	if code := serveWithRole("", RequireAnyRole(RoleCaller)); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestRequireAdmin(t *testing.T) {
	if code := serveWithRole(RoleCaller, RequireAdmin()); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
	if code := serveWithRole(RoleAdmin, RequireAdmin()); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}
