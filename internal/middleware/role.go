package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/classroom-lms/backend/internal/models"
	"github.com/classroom-lms/backend/pkg/response"
)

// RequireRole admits callers whose role is one of roles. It must run after JWT.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		who, ok := CurrentIdentity(c)
		if !ok {
			response.Abort(c, http.StatusUnauthorized, "missing user context")
			return
		}
		if !slices.Contains(roles, who.Role) {
			response.Abort(c, http.StatusForbidden, "insufficient permissions")
			return
		}
		c.Next()
	}
}
