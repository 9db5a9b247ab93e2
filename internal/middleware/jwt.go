package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stratum-app/backend/internal/auth"
	"github.com/stratum-app/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
	// ContextOrganizationID is the key for the organization resolved by org access checks.
	ContextOrganizationID = "organization_id"
	// ContextOrgRole is the caller's role within ContextOrganizationID.
	ContextOrgRole = "org_role"
)

// JWT validates the bearer token and stores the user id, role and email in the context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(token)
		if errors.Is(err, auth.ErrExpiredToken) {
			response.Unauthorized(c, "session expired; sign in again")
			c.Abort()
			return
		}
		if err != nil {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}
