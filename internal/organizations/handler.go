package organizations

import (
	"context"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/middleware"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/pkg/response"
)

// Slug must be lowercase alphanumeric and hyphens only, 2–64 chars.
var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,63}$`)

// UserLookup resolves an email to a registered user.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// Handler handles organization HTTP endpoints.
type Handler struct {
	repo   *Repository
	users  UserLookup
	logger *zap.Logger
}

// NewHandler creates an organizations handler.
func NewHandler(repo *Repository, users UserLookup, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, users: users, logger: logger}
}

// CreateOrganizationRequest is the body for POST /organizations.
type CreateOrganizationRequest struct {
	Name string `json:"name" binding:"required"`
	Slug string `json:"slug" binding:"required"`
}

// AddMemberRequest is the body for POST /organizations/:id/members.
type AddMemberRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required,oneof=owner manager viewer"`
}

// CreateOrganization handles POST /organizations. Creates org and adds current user as owner.
func (h *Handler) CreateOrganization(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	var body CreateOrganizationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "name and slug required")
		return
	}
	body.Slug = strings.ToLower(strings.TrimSpace(body.Slug))
	if !slugRegex.MatchString(body.Slug) {
		response.BadRequest(c, "slug must be 2–64 chars, lowercase letters, numbers, hyphens only")
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if len(body.Name) < 1 || len(body.Name) > 255 {
		response.BadRequest(c, "name must be 1–255 characters")
		return
	}
	org := &models.Organization{Name: body.Name, Slug: body.Slug}
	if err := h.repo.CreateWithOwner(c.Request.Context(), org, userID); err != nil {
		if !apperr.IsConflict(err) {
			h.logger.Error("create organization failed", zap.Error(err))
		}
		response.Error(c, err, "failed to create organization")
		return
	}
	response.Created(c, org)
}

// ListMyOrganizations handles GET /organizations. Returns orgs the current user is a member of.
func (h *Handler) ListMyOrganizations(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	orgs, err := h.repo.ListOrganizationsForUser(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to load organizations")
		return
	}
	response.OK(c, orgs)
}

// ListMembers handles GET /organizations/:id/members.
func (h *Handler) ListMembers(c *gin.Context) {
	members, err := h.repo.ListMembers(c.Request.Context(), OrgID(c))
	if err != nil {
		response.Internal(c, "failed to load members")
		return
	}
	response.OK(c, members)
}

// AddMember handles POST /organizations/:id/members (org owners only). The user must already be registered.
func (h *Handler) AddMember(c *gin.Context) {
	var body AddMemberRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	user, err := h.users.GetByEmail(c.Request.Context(), body.Email)
	if err != nil {
		response.Error(c, err, "failed to look up user")
		return
	}
	if user.Role != models.RoleStaff {
		response.BadRequest(c, "portal accounts cannot join an organization")
		return
	}
	if err := h.repo.AddUser(c.Request.Context(), OrgID(c), user.ID, body.Role); err != nil {
		h.logger.Error("add member failed", zap.Error(err), zap.String("organization_id", OrgID(c).String()))
		response.Internal(c, "failed to add member")
		return
	}
	response.Created(c, Member{UserID: user.ID, Email: user.Email, FullName: user.FullName, Role: body.Role})
}

// RemoveMember handles DELETE /organizations/:id/members/:userId (org owners only).
func (h *Handler) RemoveMember(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	if err := h.repo.RemoveUser(c.Request.Context(), OrgID(c), userID); err != nil {
		response.Error(c, err, "failed to remove member")
		return
	}
	response.NoContent(c)
}
