// Package analytics reports aggregate figures for a scheme.
package analytics

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stratum-app/backend/internal/organizations"
	"github.com/stratum-app/backend/pkg/response"
)

// Summary is the JSON shape of GET /organizations/:id/schemes/:schemeId/summary.
type Summary struct {
	SchemeID            uuid.UUID       `json:"scheme_id"`
	SchemeName          string          `json:"scheme_name"`
	ActiveLots          int             `json:"active_lots"`
	InactiveLots        int             `json:"inactive_lots"`
	TotalEntitlement    decimal.Decimal `json:"total_entitlement"`
	Owners              int             `json:"owners"`
	OwnersByPortalState map[string]int  `json:"owners_by_portal_state"`
	LevySchedules       int             `json:"levy_schedules"`
	GeneratedSchedules  int             `json:"generated_schedules"`
	TotalLeviedCents    int64           `json:"total_levied_cents"`
	Documents           int             `json:"documents"`
	// PortalAdoption is activated owners over all owners, or nil when the scheme has none.
	PortalAdoption *float64 `json:"portal_adoption,omitempty"`
}

// Store loads summaries; *Repository implements it.
type Store interface {
	SchemeSummary(ctx context.Context, orgID, schemeID uuid.UUID) (*Summary, error)
}

// Handler handles scheme analytics.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates an analytics handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// SchemeSummary handles GET /organizations/:id/schemes/:schemeId/summary.
func (h *Handler) SchemeSummary(c *gin.Context) {
	schemeID, err := uuid.Parse(c.Param("schemeId"))
	if err != nil {
		response.BadRequest(c, "invalid scheme id")
		return
	}
	sum, err := h.store.SchemeSummary(c.Request.Context(), organizations.OrgID(c), schemeID)
	if err != nil {
		response.Error(c, err, "failed to load scheme summary")
		return
	}
	if sum.Owners > 0 {
		adoption := float64(sum.OwnersByPortalState["activated"]) / float64(sum.Owners)
		sum.PortalAdoption = &adoption
	}
	response.OK(c, sum)
}
