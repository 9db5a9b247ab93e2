package billing

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stratum-app/backend/internal/middleware"
	"github.com/stratum-app/backend/pkg/response"
)

// FeatureChecker decides whether an organization may use a gated feature.
type FeatureChecker interface {
	FeatureAllowed(ctx context.Context, orgID uuid.UUID, feature string) (bool, error)
}

// RequireFeature rejects the request with 403 unless the organization's tier unlocks feature.
// Call after organizations.RequireOrgAccess so the organization is in the context.
func RequireFeature(checker FeatureChecker, feature string) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, ok := c.Get(middleware.ContextOrganizationID)
		if !ok {
			response.Forbidden(c, "organization context required")
			c.Abort()
			return
		}
		allowed, err := checker.FeatureAllowed(c.Request.Context(), orgID.(uuid.UUID), feature)
		if err != nil {
			response.ServiceUnavailable(c, "could not verify subscription")
			c.Abort()
			return
		}
		if !allowed {
			response.UpgradeRequired(c, feature)
			c.Abort()
			return
		}
		c.Next()
	}
}
