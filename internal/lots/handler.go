// Package lots manages the lots of a scheme and their unit entitlements.
package lots

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/internal/organizations"
	"github.com/stratum-app/backend/pkg/response"
)

// Store is the persistence the handler needs; *Repository implements it.
type Store interface {
	Create(ctx context.Context, orgID uuid.UUID, l *models.Lot) error
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Lot, error)
	ListByScheme(ctx context.Context, orgID, schemeID uuid.UUID, status string) ([]*models.Lot, error)
	Update(ctx context.Context, orgID uuid.UUID, l *models.Lot) error
	SetStatus(ctx context.Context, orgID, id uuid.UUID, status string) (*models.Lot, error)
}

// Handler handles lot HTTP endpoints.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates a lots handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// LotRequest is the body for creating or updating a lot. Entitlement accepts a JSON number or string.
type LotRequest struct {
	LotNumber   int             `json:"lot_number" binding:"required"`
	UnitNumber  string          `json:"unit_number" binding:"max=64"`
	Entitlement decimal.Decimal `json:"entitlement"`
}

func (r LotRequest) validate() error {
	if r.LotNumber <= 0 {
		return apperr.Validation("lot_number must be a positive integer")
	}
	if !r.Entitlement.IsPositive() {
		return apperr.Validation("entitlement must be greater than zero")
	}
	return nil
}

// List handles GET /organizations/:id/schemes/:schemeId/lots?status=active|inactive.
func (h *Handler) List(c *gin.Context) {
	schemeID, err := uuid.Parse(c.Param("schemeId"))
	if err != nil {
		response.BadRequest(c, "invalid scheme id")
		return
	}
	status := c.Query("status")
	if status != "" && status != models.StatusActive && status != models.StatusInactive {
		response.BadRequest(c, "status must be active or inactive")
		return
	}
	list, err := h.store.ListByScheme(c.Request.Context(), organizations.OrgID(c), schemeID, status)
	if err != nil {
		h.logger.Error("list lots failed", zap.Error(err))
		response.Internal(c, "failed to load lots")
		return
	}
	if list == nil {
		list = []*models.Lot{}
	}
	response.OK(c, list)
}

// Create handles POST /organizations/:id/schemes/:schemeId/lots.
func (h *Handler) Create(c *gin.Context) {
	schemeID, err := uuid.Parse(c.Param("schemeId"))
	if err != nil {
		response.BadRequest(c, "invalid scheme id")
		return
	}
	var body LotRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := body.validate(); err != nil {
		response.Error(c, err, "invalid lot")
		return
	}
	l := &models.Lot{
		SchemeID:    schemeID,
		LotNumber:   body.LotNumber,
		UnitNumber:  strings.TrimSpace(body.UnitNumber),
		Entitlement: body.Entitlement,
	}
	if err := h.store.Create(c.Request.Context(), organizations.OrgID(c), l); err != nil {
		response.Error(c, err, "failed to create lot")
		return
	}
	response.Created(c, l)
}

// Get handles GET /organizations/:id/lots/:lotId.
func (h *Handler) Get(c *gin.Context) {
	id, ok := lotID(c)
	if !ok {
		return
	}
	l, err := h.store.GetByID(c.Request.Context(), organizations.OrgID(c), id)
	if err != nil {
		response.Error(c, err, "failed to load lot")
		return
	}
	response.OK(c, l)
}

// Update handles PUT /organizations/:id/lots/:lotId.
func (h *Handler) Update(c *gin.Context) {
	id, ok := lotID(c)
	if !ok {
		return
	}
	var body LotRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := body.validate(); err != nil {
		response.Error(c, err, "invalid lot")
		return
	}
	l := &models.Lot{
		ID:          id,
		LotNumber:   body.LotNumber,
		UnitNumber:  strings.TrimSpace(body.UnitNumber),
		Entitlement: body.Entitlement,
	}
	if err := h.store.Update(c.Request.Context(), organizations.OrgID(c), l); err != nil {
		response.Error(c, err, "failed to update lot")
		return
	}
	response.OK(c, l)
}

// Deactivate handles DELETE /organizations/:id/lots/:lotId.
func (h *Handler) Deactivate(c *gin.Context) {
	h.setStatus(c, models.StatusInactive)
}

// Activate handles POST /organizations/:id/lots/:lotId/activate.
func (h *Handler) Activate(c *gin.Context) {
	h.setStatus(c, models.StatusActive)
}

func (h *Handler) setStatus(c *gin.Context, status string) {
	id, ok := lotID(c)
	if !ok {
		return
	}
	l, err := h.store.SetStatus(c.Request.Context(), organizations.OrgID(c), id, status)
	if err != nil {
		response.Error(c, err, "failed to update lot status")
		return
	}
	response.OK(c, l)
}

func lotID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("lotId"))
	if err != nil {
		response.BadRequest(c, "invalid lot id")
		return uuid.Nil, false
	}
	return id, true
}
