// Package emaillogs exposes the per-organisation record of transactional email delivery.
package emaillogs

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/internal/organizations"
	"github.com/stratum-app/backend/pkg/response"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

var (
	statuses = map[string]bool{
		models.EmailLogStatusPending: true,
		models.EmailLogStatusSent:    true,
		models.EmailLogStatusFailed:  true,
		models.EmailLogStatusSkipped: true,
	}
	templates = map[string]bool{
		models.EmailTemplatePortalInvite: true,
		models.EmailTemplateLevyNotice:   true,
	}
)

// Store reads the delivery log.
type Store interface {
	List(ctx context.Context, orgID uuid.UUID, f Filter) ([]*models.EmailLog, error)
}

type Handler struct {
	store  Store
	logger *zap.Logger
}

func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// List handles GET /organizations/:id/email-logs?status=&template=&owner_id=&limit=.
func (h *Handler) List(c *gin.Context) {
	f, msg := parseFilter(c)
	if msg != "" {
		response.BadRequest(c, msg)
		return
	}
	logs, err := h.store.List(c.Request.Context(), organizations.OrgID(c), f)
	if err != nil {
		h.logger.Error("list email logs", zap.Error(err))
		response.Internal(c, "failed to load email logs")
		return
	}
	response.OK(c, logs)
}

func parseFilter(c *gin.Context) (Filter, string) {
	f := Filter{Status: c.Query("status"), Template: c.Query("template"), Limit: defaultLimit}
	if f.Status != "" && !statuses[f.Status] {
		return f, "status must be one of pending, sent, failed, skipped"
	}
	if f.Template != "" && !templates[f.Template] {
		return f, "unknown template"
	}
	if v := c.Query("owner_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, "invalid owner_id"
		}
		f.OwnerID = &id
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLimit {
			return f, "limit must be between 1 and 500"
		}
		f.Limit = n
	}
	return f, ""
}
