package billing

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/middleware"
	"github.com/stratum-app/backend/pkg/response"
)

const maxWebhookBytes = 64 << 10

// Handler serves feature checks, the billing portal and the Stripe webhook.
type Handler struct {
	svc    *Service
	tiers  *TierService
	logger *zap.Logger
}

// NewHandler creates a billing handler.
func NewHandler(svc *Service, tiers *TierService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, tiers: tiers, logger: logger}
}

// FeatureResponse is returned by GET /organizations/:id/features/:feature.
type FeatureResponse struct {
	Feature string `json:"feature"`
	Tier    Tier   `json:"tier"`
	Allowed bool   `json:"allowed"`
}

// Feature handles GET /organizations/:id/features/:feature. It is advisory; gated routes check again.
func (h *Handler) Feature(c *gin.Context) {
	orgID := c.MustGet(middleware.ContextOrganizationID).(uuid.UUID)
	tier, err := h.tiers.TierFor(c.Request.Context(), orgID)
	if err != nil {
		h.logger.Error("tier lookup failed", zap.Error(err), zap.String("organization_id", orgID.String()))
		response.ServiceUnavailable(c, "could not verify subscription")
		return
	}
	feature := c.Param("feature")
	response.OK(c, FeatureResponse{Feature: feature, Tier: tier, Allowed: Allowed(feature, tier)})
}

// Features handles GET /organizations/:id/features and lists every feature with its availability.
func (h *Handler) Features(c *gin.Context) {
	orgID := c.MustGet(middleware.ContextOrganizationID).(uuid.UUID)
	tier, err := h.tiers.TierFor(c.Request.Context(), orgID)
	if err != nil {
		h.logger.Error("tier lookup failed", zap.Error(err), zap.String("organization_id", orgID.String()))
		response.ServiceUnavailable(c, "could not verify subscription")
		return
	}
	out := make([]FeatureResponse, 0, len(featureTiers))
	for _, f := range Features() {
		out = append(out, FeatureResponse{Feature: f, Tier: tier, Allowed: Allowed(f, tier)})
	}
	response.OK(c, out)
}

// CreateAccount handles POST /organizations/:id/billing/account (org owners only).
func (h *Handler) CreateAccount(c *gin.Context) {
	orgID := c.MustGet(middleware.ContextOrganizationID).(uuid.UUID)
	customerID, err := h.svc.EnsureCustomer(c.Request.Context(), orgID)
	if err != nil {
		h.logCollaborator(err, "create stripe customer failed", orgID)
		response.Error(c, err, "failed to create billing account")
		return
	}
	response.OK(c, gin.H{"customer_id": customerID})
}

// PortalSession handles POST /organizations/:id/billing/portal (org owners only).
func (h *Handler) PortalSession(c *gin.Context) {
	orgID := c.MustGet(middleware.ContextOrganizationID).(uuid.UUID)
	url, err := h.svc.CreatePortalSession(c.Request.Context(), orgID)
	if err != nil {
		h.logCollaborator(err, "create billing portal session failed", orgID)
		response.Error(c, err, "failed to open billing portal")
		return
	}
	response.OK(c, gin.H{"url": url})
}

// Sync handles POST /organizations/:id/billing/sync (org owners only).
func (h *Handler) Sync(c *gin.Context) {
	orgID := c.MustGet(middleware.ContextOrganizationID).(uuid.UUID)
	sub, err := h.svc.SyncSubscription(c.Request.Context(), orgID)
	if err != nil {
		h.logCollaborator(err, "subscription sync failed", orgID)
		response.Error(c, err, "failed to sync subscription")
		return
	}
	response.OK(c, sub)
}

// Webhook handles POST /webhooks/stripe.
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		response.BadRequest(c, "failed to read body")
		return
	}
	ev, err := h.svc.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, ErrOffline):
			response.ServiceUnavailable(c, err.Error())
		case errors.Is(err, ErrInvalidSignature):
			response.BadRequest(c, "invalid signature")
		default:
			h.logger.Error("stripe webhook failed", zap.Error(err))
			response.Internal(c, "failed to process event")
		}
		return
	}
	h.logger.Info("stripe webhook processed", zap.String("event_id", ev.ID), zap.String("type", ev.Type))
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *Handler) logCollaborator(err error, msg string, orgID uuid.UUID) {
	if apperr.KindOf(err) == apperr.KindCollaborator || apperr.KindOf(err) == "" {
		h.logger.Error(msg, zap.Error(err), zap.String("organization_id", orgID.String()))
	}
}
