// Package owners manages lot owners and their self-service portal access.
package owners

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/internal/organizations"
	"github.com/stratum-app/backend/pkg/response"
)

// Store is the owner persistence used by Handler; *Repository implements it.
type Store interface {
	Create(ctx context.Context, o *models.Owner) error
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Owner, error)
	List(ctx context.Context, orgID uuid.UUID) ([]*models.Owner, error)
	Update(ctx context.Context, o *models.Owner) error
	LinkLot(ctx context.Context, orgID, ownerID, lotID uuid.UUID) error
	UnlinkLot(ctx context.Context, orgID, ownerID, lotID uuid.UUID) error
}

// Handler handles owner CRUD endpoints.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates an owners handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// OwnerRequest is the body for creating or updating an owner.
type OwnerRequest struct {
	Name  string `json:"name" binding:"required,max=255"`
	Email string `json:"email" binding:"required,email"`
	Phone string `json:"phone" binding:"max=32"`
}

// List handles GET /organizations/:id/owners.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.List(c.Request.Context(), organizations.OrgID(c))
	if err != nil {
		h.logger.Error("list owners failed", zap.Error(err))
		response.Internal(c, "failed to load owners")
		return
	}
	if list == nil {
		list = []*models.Owner{}
	}
	response.OK(c, list)
}

// Create handles POST /organizations/:id/owners.
func (h *Handler) Create(c *gin.Context) {
	var body OwnerRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	o := &models.Owner{
		OrganizationID: organizations.OrgID(c),
		Name:           strings.TrimSpace(body.Name),
		Email:          body.Email,
		Phone:          strings.TrimSpace(body.Phone),
	}
	if o.Name == "" {
		response.BadRequest(c, "name required")
		return
	}
	if err := h.store.Create(c.Request.Context(), o); err != nil {
		h.logger.Error("create owner failed", zap.Error(err))
		response.Error(c, err, "failed to create owner")
		return
	}
	response.Created(c, o)
}

// Get handles GET /organizations/:id/owners/:ownerId.
func (h *Handler) Get(c *gin.Context) {
	id, ok := ownerID(c)
	if !ok {
		return
	}
	o, err := h.store.GetByID(c.Request.Context(), organizations.OrgID(c), id)
	if err != nil {
		response.Error(c, err, "failed to load owner")
		return
	}
	response.OK(c, o)
}

// Update handles PUT /organizations/:id/owners/:ownerId.
func (h *Handler) Update(c *gin.Context) {
	id, ok := ownerID(c)
	if !ok {
		return
	}
	var body OwnerRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	orgID := organizations.OrgID(c)
	o := &models.Owner{
		ID:             id,
		OrganizationID: orgID,
		Name:           strings.TrimSpace(body.Name),
		Email:          body.Email,
		Phone:          strings.TrimSpace(body.Phone),
	}
	if o.Name == "" {
		response.BadRequest(c, "name required")
		return
	}
	if err := h.store.Update(c.Request.Context(), o); err != nil {
		response.Error(c, err, "failed to update owner")
		return
	}
	updated, err := h.store.GetByID(c.Request.Context(), orgID, id)
	if err != nil {
		response.Error(c, err, "failed to load owner")
		return
	}
	response.OK(c, updated)
}

// LinkLot handles PUT /organizations/:id/owners/:ownerId/lots/:lotId.
func (h *Handler) LinkLot(c *gin.Context) {
	h.changeLink(c, h.store.LinkLot)
}

// UnlinkLot handles DELETE /organizations/:id/owners/:ownerId/lots/:lotId.
func (h *Handler) UnlinkLot(c *gin.Context) {
	h.changeLink(c, h.store.UnlinkLot)
}

func (h *Handler) changeLink(c *gin.Context, fn func(ctx context.Context, orgID, ownerID, lotID uuid.UUID) error) {
	id, ok := ownerID(c)
	if !ok {
		return
	}
	lotID, err := uuid.Parse(c.Param("lotId"))
	if err != nil {
		response.BadRequest(c, "invalid lot id")
		return
	}
	if err := fn(c.Request.Context(), organizations.OrgID(c), id, lotID); err != nil {
		response.Error(c, err, "failed to update owner lots")
		return
	}
	response.NoContent(c)
}

func ownerID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("ownerId"))
	if err != nil {
		response.BadRequest(c, "invalid owner id")
		return uuid.Nil, false
	}
	return id, true
}
