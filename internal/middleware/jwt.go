package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/classroom-lms/backend/internal/auth"
	"github.com/classroom-lms/backend/internal/models"
	"github.com/classroom-lms/backend/pkg/response"
)

// Gin context keys set by JWT.
const (
	ContextUserID    = "user_id"    // uuid.UUID
	ContextUserRole  = "user_role"  // models.Role
	ContextUserEmail = "user_email" // string
)

// Identity is the authenticated caller.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   models.Role
}

// CurrentIdentity returns the caller set by JWT. ok is false on unauthenticated routes.
func CurrentIdentity(c *gin.Context) (Identity, bool) {
	id, ok := c.Get(ContextUserID)
	if !ok {
		return Identity{}, false
	}
	userID, ok := id.(uuid.UUID)
	if !ok {
		return Identity{}, false
	}
	role, _ := c.Get(ContextUserRole)
	r, _ := role.(models.Role)
	return Identity{UserID: userID, Email: c.GetString(ContextUserEmail), Role: r}, true
}

// JWT requires "Authorization: Bearer <token>" and stores the token's identity in the context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, msg := bearerToken(c.GetHeader("Authorization"))
		if msg != "" {
			response.Abort(c, http.StatusUnauthorized, msg)
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

func bearerToken(header string) (token, problem string) {
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, token, found := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", "invalid authorization header"
	}
	return token, ""
}
