package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/pkg/response"
)

// RequireRole admits only sessions whose platform role is one of roles. Staff routes and
// owner portal routes are split this way; organisation roles are checked separately.
// Call after JWT.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := models.Role(c.GetString(ContextUserRole))
		if !role.Valid() {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		if role == models.RoleOwner {
			response.Forbidden(c, "owner portal accounts cannot use the staff console")
		} else {
			response.Forbidden(c, "this area is for lot owners")
		}
		c.Abort()
	}
}
