// Package schemes manages strata schemes. A scheme is deactivated, never deleted.
package schemes

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratum-app/backend/internal/billing"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/internal/organizations"
	"github.com/stratum-app/backend/pkg/response"
)

// Store is the persistence the handler needs; *Repository implements it.
type Store interface {
	Create(ctx context.Context, s *models.Scheme) error
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Scheme, error)
	List(ctx context.Context, orgID uuid.UUID, status string) ([]*models.Scheme, error)
	CountActive(ctx context.Context, orgID uuid.UUID) (int, error)
	Update(ctx context.Context, s *models.Scheme) error
	SetStatus(ctx context.Context, orgID, id uuid.UUID, status string) (*models.Scheme, error)
}

// Handler handles scheme HTTP endpoints.
type Handler struct {
	store    Store
	features billing.FeatureChecker
	logger   *zap.Logger
}

// NewHandler creates a schemes handler.
func NewHandler(store Store, features billing.FeatureChecker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, features: features, logger: logger}
}

// SchemeRequest is the body for creating or updating a scheme.
type SchemeRequest struct {
	Name    string `json:"name" binding:"required,max=255"`
	Number  string `json:"number" binding:"required,max=64"`
	Address string `json:"address" binding:"max=500"`
}

// List handles GET /organizations/:id/schemes?status=active|inactive.
func (h *Handler) List(c *gin.Context) {
	status := c.Query("status")
	if status != "" && status != models.StatusActive && status != models.StatusInactive {
		response.BadRequest(c, "status must be active or inactive")
		return
	}
	list, err := h.store.List(c.Request.Context(), organizations.OrgID(c), status)
	if err != nil {
		h.logger.Error("list schemes failed", zap.Error(err))
		response.Internal(c, "failed to load schemes")
		return
	}
	if list == nil {
		list = []*models.Scheme{}
	}
	response.OK(c, list)
}

// Create handles POST /organizations/:id/schemes. A second active scheme needs the multiple_schemes feature.
func (h *Handler) Create(c *gin.Context) {
	var body SchemeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	orgID := organizations.OrgID(c)
	s := &models.Scheme{
		OrganizationID: orgID,
		Name:           strings.TrimSpace(body.Name),
		Number:         strings.TrimSpace(body.Number),
		Address:        strings.TrimSpace(body.Address),
	}
	if s.Name == "" || s.Number == "" {
		response.BadRequest(c, "name and number required")
		return
	}
	if !h.allowAnotherActive(c, orgID) {
		return
	}
	if err := h.store.Create(c.Request.Context(), s); err != nil {
		h.logger.Warn("create scheme failed", zap.Error(err), zap.String("organization_id", orgID.String()))
		response.Error(c, err, "failed to create scheme")
		return
	}
	response.Created(c, s)
}

// Get handles GET /organizations/:id/schemes/:schemeId.
func (h *Handler) Get(c *gin.Context) {
	id, ok := schemeID(c)
	if !ok {
		return
	}
	s, err := h.store.GetByID(c.Request.Context(), organizations.OrgID(c), id)
	if err != nil {
		response.Error(c, err, "failed to load scheme")
		return
	}
	response.OK(c, s)
}

// Update handles PUT /organizations/:id/schemes/:schemeId.
func (h *Handler) Update(c *gin.Context) {
	id, ok := schemeID(c)
	if !ok {
		return
	}
	var body SchemeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s := &models.Scheme{
		ID:             id,
		OrganizationID: organizations.OrgID(c),
		Name:           strings.TrimSpace(body.Name),
		Number:         strings.TrimSpace(body.Number),
		Address:        strings.TrimSpace(body.Address),
	}
	if s.Name == "" || s.Number == "" {
		response.BadRequest(c, "name and number required")
		return
	}
	if err := h.store.Update(c.Request.Context(), s); err != nil {
		response.Error(c, err, "failed to update scheme")
		return
	}
	response.OK(c, s)
}

// Deactivate handles DELETE /organizations/:id/schemes/:schemeId. The scheme and its history are kept.
func (h *Handler) Deactivate(c *gin.Context) {
	id, ok := schemeID(c)
	if !ok {
		return
	}
	s, err := h.store.SetStatus(c.Request.Context(), organizations.OrgID(c), id, models.StatusInactive)
	if err != nil {
		response.Error(c, err, "failed to deactivate scheme")
		return
	}
	response.OK(c, s)
}

// Activate handles POST /organizations/:id/schemes/:schemeId/activate.
func (h *Handler) Activate(c *gin.Context) {
	id, ok := schemeID(c)
	if !ok {
		return
	}
	orgID := organizations.OrgID(c)
	current, err := h.store.GetByID(c.Request.Context(), orgID, id)
	if err != nil {
		response.Error(c, err, "failed to load scheme")
		return
	}
	if current.Status == models.StatusActive {
		response.OK(c, current)
		return
	}
	if !h.allowAnotherActive(c, orgID) {
		return
	}
	s, err := h.store.SetStatus(c.Request.Context(), orgID, id, models.StatusActive)
	if err != nil {
		response.Error(c, err, "failed to activate scheme")
		return
	}
	response.OK(c, s)
}

// allowAnotherActive writes the response and returns false when the organization may not add an active scheme.
func (h *Handler) allowAnotherActive(c *gin.Context, orgID uuid.UUID) bool {
	n, err := h.store.CountActive(c.Request.Context(), orgID)
	if err != nil {
		h.logger.Error("count schemes failed", zap.Error(err))
		response.Internal(c, "failed to check schemes")
		return false
	}
	if n == 0 {
		return true
	}
	allowed, err := h.features.FeatureAllowed(c.Request.Context(), orgID, billing.FeatureMultipleSchemes)
	if err != nil {
		response.ServiceUnavailable(c, "could not verify subscription")
		return false
	}
	if !allowed {
		response.UpgradeRequired(c, billing.FeatureMultipleSchemes)
		return false
	}
	return true
}

func schemeID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("schemeId"))
	if err != nil {
		response.BadRequest(c, "invalid scheme id")
		return uuid.Nil, false
	}
	return id, true
}
