package levy

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/billing"
	"github.com/stratum-app/backend/internal/metrics"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/internal/organizations"
	"github.com/stratum-app/backend/pkg/response"
)

// Schedules is the read/create persistence used by Handler; *Repository implements it.
type Schedules interface {
	CreateSchedule(ctx context.Context, orgID uuid.UUID, s *models.LevySchedule) error
	GetSchedule(ctx context.Context, orgID, id uuid.UUID) (*models.LevySchedule, error)
	ListSchedules(ctx context.Context, orgID, schemeID uuid.UUID) ([]models.LevySchedule, error)
	ListItems(ctx context.Context, scheduleID uuid.UUID) ([]models.LevyItem, error)
}

// OrganizationLookup resolves an organization for notices.
type OrganizationLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

// SchemeLookup resolves a scheme for notices.
type SchemeLookup interface {
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Scheme, error)
}

// Handler handles levy schedule endpoints.
type Handler struct {
	service   *Service
	schedules Schedules
	notifier  *Notifier
	features  billing.FeatureChecker
	orgs      OrganizationLookup
	schemes   SchemeLookup
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// HandlerDeps groups the collaborators of Handler.
type HandlerDeps struct {
	Service   *Service
	Schedules Schedules
	Notifier  *Notifier
	Features  billing.FeatureChecker
	Orgs      OrganizationLookup
	Schemes   SchemeLookup
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// NewHandler creates a levy handler.
func NewHandler(d HandlerDeps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Handler{
		service:   d.Service,
		schedules: d.Schedules,
		notifier:  d.Notifier,
		features:  d.Features,
		orgs:      d.Orgs,
		schemes:   d.Schemes,
		metrics:   d.Metrics,
		logger:    d.Logger,
	}
}

// CreateScheduleRequest is the body for POST /organizations/:id/schemes/:schemeId/levy-schedules.
// Dates use YYYY-MM-DD.
type CreateScheduleRequest struct {
	Name        string `json:"name"`
	BudgetCents int64  `json:"budget_cents"`
	PeriodStart string `json:"period_start" binding:"required"`
	PeriodEnd   string `json:"period_end" binding:"required"`
}

func (r CreateScheduleRequest) toSchedule(schemeID uuid.UUID) (*models.LevySchedule, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	if r.BudgetCents < 1 {
		return nil, apperr.Validation("budget must be at least 1 cent")
	}
	start, err := time.Parse(time.DateOnly, r.PeriodStart)
	if err != nil {
		return nil, apperr.Validation("period_start must be a date (YYYY-MM-DD)")
	}
	end, err := time.Parse(time.DateOnly, r.PeriodEnd)
	if err != nil {
		return nil, apperr.Validation("period_end must be a date (YYYY-MM-DD)")
	}
	if end.Before(start) {
		return nil, apperr.Validation("period_end must not be before period_start")
	}
	return &models.LevySchedule{SchemeID: schemeID, Name: name, BudgetCents: r.BudgetCents, PeriodStart: start, PeriodEnd: end}, nil
}

// ListSchedules handles GET /organizations/:id/schemes/:schemeId/levy-schedules.
func (h *Handler) ListSchedules(c *gin.Context) {
	schemeID, err := uuid.Parse(c.Param("schemeId"))
	if err != nil {
		response.BadRequest(c, "invalid scheme id")
		return
	}
	list, err := h.schedules.ListSchedules(c.Request.Context(), organizations.OrgID(c), schemeID)
	if err != nil {
		h.logger.Error("list levy schedules failed", zap.Error(err))
		response.Internal(c, "failed to load levy schedules")
		return
	}
	response.OK(c, list)
}

// CreateSchedule handles POST /organizations/:id/schemes/:schemeId/levy-schedules.
func (h *Handler) CreateSchedule(c *gin.Context) {
	schemeID, err := uuid.Parse(c.Param("schemeId"))
	if err != nil {
		response.BadRequest(c, "invalid scheme id")
		return
	}
	var body CreateScheduleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s, err := body.toSchedule(schemeID)
	if err != nil {
		response.Error(c, err, "invalid levy schedule")
		return
	}
	if err := h.schedules.CreateSchedule(c.Request.Context(), organizations.OrgID(c), s); err != nil {
		if apperr.KindOf(err) == "" {
			h.logger.Error("create levy schedule failed", zap.Error(err))
		}
		response.Error(c, err, "failed to create levy schedule")
		return
	}
	response.Created(c, s)
}

// ScheduleDetail is a schedule with its items.
type ScheduleDetail struct {
	models.LevySchedule
	Items []models.LevyItem `json:"items"`
}

// GetSchedule handles GET /organizations/:id/levy-schedules/:scheduleId.
func (h *Handler) GetSchedule(c *gin.Context) {
	id, ok := scheduleID(c)
	if !ok {
		return
	}
	s, err := h.schedules.GetSchedule(c.Request.Context(), organizations.OrgID(c), id)
	if err != nil {
		response.Error(c, err, "failed to load levy schedule")
		return
	}
	items, err := h.schedules.ListItems(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("list levy items failed", zap.Error(err))
		response.Internal(c, "failed to load levy items")
		return
	}
	response.OK(c, ScheduleDetail{LevySchedule: *s, Items: items})
}

// GenerateResponse is returned by Generate.
type GenerateResponse struct {
	*GenerateResult
	NoticesQueued int `json:"notices_queued"`
	NoticesFailed int `json:"notices_failed"`
}

// Generate handles POST /organizations/:id/levy-schedules/:scheduleId/generate?replace=bool&notify=bool.
// The route is gated by levy_calculation; notify additionally needs email_notifications.
func (h *Handler) Generate(c *gin.Context) {
	id, ok := scheduleID(c)
	if !ok {
		return
	}
	replace, ok := boolQuery(c, "replace")
	if !ok {
		return
	}
	notify, ok := boolQuery(c, "notify")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	orgID := organizations.OrgID(c)

	if notify {
		allowed, err := h.features.FeatureAllowed(ctx, orgID, billing.FeatureEmailNotifications)
		if err != nil {
			response.ServiceUnavailable(c, "could not verify subscription")
			return
		}
		if !allowed {
			response.UpgradeRequired(c, billing.FeatureEmailNotifications)
			return
		}
	}

	res, err := h.service.Generate(ctx, orgID, id, GenerateOptions{Replace: replace})
	if err != nil {
		h.metrics.LevyGeneration(generationOutcome(err))
		if apperr.KindOf(err) == "" {
			h.logger.Error("levy generation failed", zap.Error(err), zap.String("schedule_id", id.String()))
		}
		response.Error(c, err, "failed to generate levies")
		return
	}
	if res.Replaced > 0 {
		h.metrics.LevyGeneration("replaced")
	} else {
		h.metrics.LevyGeneration("generated")
	}
	h.logger.Info("levies generated",
		zap.String("schedule_id", id.String()),
		zap.Int("items", res.ItemsCreated),
		zap.Int("replaced", res.Replaced),
		zap.String("note", res.Note))

	out := GenerateResponse{GenerateResult: res}
	if notify {
		out.NoticesQueued, out.NoticesFailed = h.notify(ctx, orgID, id)
	}
	response.OK(c, out)
}

// notify queues notices after a committed generation. Failures here never undo the generation.
func (h *Handler) notify(ctx context.Context, orgID, id uuid.UUID) (queued, failed int) {
	schedule, err := h.schedules.GetSchedule(ctx, orgID, id)
	if err != nil {
		h.logger.Error("load schedule for notices failed", zap.Error(err))
		return 0, 0
	}
	var nc NoticeContext
	if org, err := h.orgs.GetByID(ctx, orgID); err == nil {
		nc.OrganizationName = org.Name
	}
	if scheme, err := h.schemes.GetByID(ctx, orgID, schedule.SchemeID); err == nil {
		nc.SchemeName = scheme.Name
	}
	queued, failed, err = h.notifier.Notify(ctx, schedule, nc)
	if err != nil {
		h.logger.Error("levy notices failed", zap.Error(err), zap.String("schedule_id", id.String()))
	}
	return queued, failed
}

// DeleteSchedule handles DELETE /organizations/:id/levy-schedules/:scheduleId?cascade=bool.
func (h *Handler) DeleteSchedule(c *gin.Context) {
	id, ok := scheduleID(c)
	if !ok {
		return
	}
	cascade, ok := boolQuery(c, "cascade")
	if !ok {
		return
	}
	if err := h.service.DeleteSchedule(c.Request.Context(), organizations.OrgID(c), id, cascade); err != nil {
		response.Error(c, err, "failed to delete levy schedule")
		return
	}
	response.NoContent(c)
}

func generationOutcome(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindConflict:
		return "conflict"
	case apperr.KindValidation:
		return "invalid"
	default:
		return "error"
	}
}

func scheduleID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("scheduleId"))
	if err != nil {
		response.BadRequest(c, "invalid schedule id")
		return uuid.Nil, false
	}
	return id, true
}

func boolQuery(c *gin.Context, name string) (bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		response.BadRequest(c, name+" must be true or false")
		return false, false
	}
	return v, true
}
