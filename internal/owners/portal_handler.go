package owners

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/middleware"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/internal/organizations"
	"github.com/stratum-app/backend/pkg/queue"
	"github.com/stratum-app/backend/pkg/response"
)

// OrganizationLookup resolves organization names for emails.
type OrganizationLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

// Enqueuer queues transactional emails.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Generate(userID uuid.UUID, email, role string) (string, error)
}

// PortalReads serves the owner-facing portal views.
type PortalReads interface {
	GetByPortalUser(ctx context.Context, userID uuid.UUID) ([]*models.Owner, error)
	LeviesForUser(ctx context.Context, userID uuid.UUID) ([]PortalLevy, error)
	DocumentsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Document, error)
}

// PortalConfig configures invitation links.
type PortalConfig struct {
	BaseURL   string
	InviteTTL time.Duration
}

// PortalHandler handles portal invitation, activation and owner self-service endpoints.
type PortalHandler struct {
	portal *PortalService
	orgs   OrganizationLookup
	mailer Enqueuer
	tokens TokenIssuer
	reads  PortalReads
	cfg    PortalConfig
	logger *zap.Logger
}

// NewPortalHandler creates a portal handler.
func NewPortalHandler(portal *PortalService, orgs OrganizationLookup, mailer Enqueuer, tokens TokenIssuer, reads PortalReads, cfg PortalConfig, logger *zap.Logger) *PortalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PortalHandler{portal: portal, orgs: orgs, mailer: mailer, tokens: tokens, reads: reads, cfg: cfg, logger: logger}
}

// InviteResponse is returned to staff after an invitation. InviteURL lets staff share the link by hand
// when email is unavailable.
type InviteResponse struct {
	Owner       *models.Owner `json:"owner"`
	InviteURL   string        `json:"invite_url"`
	EmailQueued bool          `json:"email_queued"`
}

// Invite handles POST /organizations/:id/owners/:ownerId/portal/invite.
func (h *PortalHandler) Invite(c *gin.Context) {
	id, ok := ownerID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	orgID := organizations.OrgID(c)
	owner, token, err := h.portal.Invite(ctx, orgID, id)
	if err != nil {
		if apperr.KindOf(err) == "" {
			h.logger.Error("portal invite failed", zap.Error(err), zap.String("owner_id", id.String()))
		}
		response.Error(c, err, "failed to invite owner")
		return
	}

	res := InviteResponse{Owner: owner, InviteURL: h.cfg.BaseURL + "/portal/invite/" + token}
	orgName := ""
	if org, err := h.orgs.GetByID(ctx, orgID); err == nil {
		orgName = org.Name
	}
	err = h.mailer.EnqueueEmail(ctx, queue.EmailPayload{
		Template:  models.EmailTemplatePortalInvite,
		Recipient: owner.Email,
		Variables: map[string]string{
			"owner_name":        owner.Name,
			"organization_name": orgName,
			"invite_url":        res.InviteURL,
			"expires_in":        humanDuration(h.cfg.InviteTTL),
		},
		OrganizationID: &orgID,
		OwnerID:        &owner.ID,
	})
	if err != nil {
		h.logger.Warn("enqueue portal invite failed", zap.Error(err), zap.String("owner_id", owner.ID.String()))
	} else {
		res.EmailQueued = true
	}
	response.Created(c, res)
}

// Reset handles POST /organizations/:id/owners/:ownerId/portal/reset (organization owners only).
func (h *PortalHandler) Reset(c *gin.Context) {
	id, ok := ownerID(c)
	if !ok {
		return
	}
	owner, err := h.portal.Reset(c.Request.Context(), organizations.OrgID(c), id)
	if err != nil {
		response.Error(c, err, "failed to reset portal access")
		return
	}
	h.logger.Info("portal access reset",
		zap.String("owner_id", owner.ID.String()),
		zap.String("by", c.MustGet(middleware.ContextUserID).(uuid.UUID).String()))
	response.OK(c, owner)
}

// InvitationResponse is the public view of an invitation.
type InvitationResponse struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PortalState string `json:"portal_state"`
}

// GetInvitation handles GET /portal/invitations/:token.
func (h *PortalHandler) GetInvitation(c *gin.Context) {
	owner, err := h.portal.Invitation(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err, "failed to load invitation")
		return
	}
	response.OK(c, InvitationResponse{Name: owner.Name, Email: owner.Email, PortalState: owner.PortalState})
}

// AcceptInvitation handles POST /portal/invitations/:token/accept.
func (h *PortalHandler) AcceptInvitation(c *gin.Context) {
	owner, err := h.portal.Accept(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err, "failed to accept invitation")
		return
	}
	response.OK(c, InvitationResponse{Name: owner.Name, Email: owner.Email, PortalState: owner.PortalState})
}

// ActivateRequest is the body for POST /portal/invitations/:token/activate.
type ActivateRequest struct {
	Password string `json:"password" binding:"required,min=8"`
}

// ActivateResponse carries the new portal session.
type ActivateResponse struct {
	Token string         `json:"token"`
	User  models.Profile `json:"user"`
}

// ActivateInvitation handles POST /portal/invitations/:token/activate.
func (h *PortalHandler) ActivateInvitation(c *gin.Context) {
	var body ActivateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "password of at least 8 characters required")
		return
	}
	owner, user, err := h.portal.Activate(c.Request.Context(), c.Param("token"), body.Password)
	if err != nil {
		if apperr.KindOf(err) == "" {
			h.logger.Error("portal activation failed", zap.Error(err))
		}
		response.Error(c, err, "failed to activate portal access")
		return
	}
	token, err := h.tokens.Generate(user.ID, user.Email, string(user.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	h.logger.Info("portal activated", zap.String("owner_id", owner.ID.String()), zap.String("user_id", user.ID.String()))
	response.Created(c, ActivateResponse{Token: token, User: user.Profile()})
}

// Me handles GET /portal/me.
func (h *PortalHandler) Me(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.reads.GetByPortalUser(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to load owner profile")
		return
	}
	if len(list) == 0 {
		response.NotFound(c, "no active portal access")
		return
	}
	response.OK(c, list)
}

// Levies handles GET /portal/levies.
func (h *PortalHandler) Levies(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.reads.LeviesForUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("load portal levies failed", zap.Error(err))
		response.Internal(c, "failed to load levies")
		return
	}
	response.OK(c, list)
}

// Documents handles GET /portal/documents.
func (h *PortalHandler) Documents(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.reads.DocumentsForUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("load portal documents failed", zap.Error(err))
		response.Internal(c, "failed to load documents")
		return
	}
	response.OK(c, list)
}

func humanDuration(d time.Duration) string {
	hours := int(d.Hours())
	switch {
	case hours%24 == 0 && hours >= 48:
		return fmt.Sprintf("%d days", hours/24)
	case hours == 1:
		return "1 hour"
	default:
		return fmt.Sprintf("%d hours", hours)
	}
}
