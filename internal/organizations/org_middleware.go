package organizations

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/middleware"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/pkg/response"
)

// RoleLookup resolves a user's role within an organization.
type RoleLookup interface {
	GetUserRole(ctx context.Context, orgID, userID uuid.UUID) (string, error)
}

// RequireOrgAccess checks that the caller is a member of the organization in :id and stores
// the organization and role in the context. With write set, viewers are rejected.
// Call after middleware.JWT.
func RequireOrgAccess(roles RoleLookup, write bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, role, ok := resolveMembership(c, roles)
		if !ok {
			return
		}
		if write && !models.CanWrite(role) {
			response.Forbidden(c, "read-only access to this organization")
			c.Abort()
			return
		}
		c.Set(middleware.ContextOrganizationID, orgID)
		c.Set(middleware.ContextOrgRole, role)
		c.Next()
	}
}

// RequireOrgRole allows only members holding one of the given organization roles.
func RequireOrgRole(roles RoleLookup, allowed ...string) gin.HandlerFunc {
	set := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}
	return func(c *gin.Context) {
		orgID, role, ok := resolveMembership(c, roles)
		if !ok {
			return
		}
		if _, ok := set[role]; !ok {
			response.Forbidden(c, "insufficient organization permissions")
			c.Abort()
			return
		}
		c.Set(middleware.ContextOrganizationID, orgID)
		c.Set(middleware.ContextOrgRole, role)
		c.Next()
	}
}

func resolveMembership(c *gin.Context, roles RoleLookup) (uuid.UUID, string, bool) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		c.Abort()
		return uuid.Nil, "", false
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role, err := roles.GetUserRole(c.Request.Context(), orgID, userID)
	if err != nil {
		if apperr.IsNotFound(err) {
			response.Forbidden(c, "not authorized for this organization")
		} else {
			response.Internal(c, "failed to check organization access")
		}
		c.Abort()
		return uuid.Nil, "", false
	}
	return orgID, role, true
}

// OrgID returns the organization resolved by RequireOrgAccess or RequireOrgRole.
func OrgID(c *gin.Context) uuid.UUID {
	return c.MustGet(middleware.ContextOrganizationID).(uuid.UUID)
}
