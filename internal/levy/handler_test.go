package levy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/metrics"
	"github.com/stratum-app/backend/internal/middleware"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/pkg/queue"
)

// memSchedules adds the read side and recipients on top of memStore.
type memSchedules struct {
	*memStore
	schemeOrg map[uuid.UUID]uuid.UUID
	owners    map[uuid.UUID][]Recipient // lot -> owners
}

func (m *memSchedules) CreateSchedule(_ context.Context, orgID uuid.UUID, s *models.LevySchedule) error {
	if m.schemeOrg[s.SchemeID] != orgID {
		return apperr.NotFound("scheme")
	}
	s.ID = uuid.New()
	s.OrganizationID = orgID
	s.Status = models.LevyStatusDraft
	m.schedules[s.ID] = *s
	return nil
}

func (m *memSchedules) GetSchedule(_ context.Context, orgID, id uuid.UUID) (*models.LevySchedule, error) {
	s, ok := m.schedules[id]
	if !ok || s.OrganizationID != orgID {
		return nil, apperr.NotFound("levy schedule")
	}
	return &s, nil
}

func (m *memSchedules) ListSchedules(_ context.Context, orgID, schemeID uuid.UUID) ([]models.LevySchedule, error) {
	list := []models.LevySchedule{}
	for _, s := range m.schedules {
		if s.OrganizationID == orgID && s.SchemeID == schemeID {
			list = append(list, s)
		}
	}
	return list, nil
}

func (m *memSchedules) ListItems(_ context.Context, id uuid.UUID) ([]models.LevyItem, error) {
	items := []models.LevyItem{}
	for _, a := range m.items[id] {
		items = append(items, models.LevyItem{ScheduleID: id, LotID: a.LotID, LotNumber: a.LotNumber, AmountCents: a.AmountCents})
	}
	return items, nil
}

func (m *memSchedules) Recipients(_ context.Context, id uuid.UUID) ([]Recipient, error) {
	var out []Recipient
	for _, a := range m.items[id] {
		for _, rc := range m.owners[a.LotID] {
			rc.LotNumber = a.LotNumber
			rc.AmountCents = a.AmountCents
			out = append(out, rc)
		}
	}
	return out, nil
}

type staticFeatures map[string]bool

func (f staticFeatures) FeatureAllowed(_ context.Context, _ uuid.UUID, feature string) (bool, error) {
	return f[feature], nil
}

type recordingMailer struct{ jobs []queue.EmailPayload }

func (r *recordingMailer) EnqueueEmail(_ context.Context, p queue.EmailPayload) error {
	r.jobs = append(r.jobs, p)
	return nil
}

type namedOrg string

func (n namedOrg) GetByID(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	return &models.Organization{ID: id, Name: string(n)}, nil
}

type namedScheme string

func (n namedScheme) GetByID(_ context.Context, orgID, id uuid.UUID) (*models.Scheme, error) {
	return &models.Scheme{ID: id, OrganizationID: orgID, Name: string(n)}, nil
}

type handlerFixture struct {
	router   *gin.Engine
	store    *memSchedules
	mailer   *recordingMailer
	metrics  *metrics.Metrics
	orgID    uuid.UUID
	schemeID uuid.UUID
}

func newHandlerFixture(t *testing.T, features staticFeatures) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &handlerFixture{mailer: &recordingMailer{}, metrics: metrics.New(), orgID: uuid.New(), schemeID: uuid.New()}
	f.store = &memSchedules{
		memStore:  newMemStore(),
		schemeOrg: map[uuid.UUID]uuid.UUID{f.schemeID: f.orgID},
		owners:    map[uuid.UUID][]Recipient{},
	}
	shares := sharesOf("1", "1", "1")
	f.store.lots[f.schemeID] = shares
	f.store.owners[shares[0].LotID] = []Recipient{{OwnerID: uuid.New(), Name: "Jane", Email: "jane@example.com"}}
	f.store.owners[shares[2].LotID] = []Recipient{{OwnerID: uuid.New(), Name: "Bob", Email: "bob@example.com"}}

	h := NewHandler(HandlerDeps{
		Service:   NewService(f.store),
		Schedules: f.store,
		Notifier:  NewNotifier(f.store, f.mailer, nil),
		Features:  features,
		Orgs:      namedOrg("Harbour Strata"),
		Schemes:   namedScheme("Harbour View"),
		Metrics:   f.metrics,
	})
	r := gin.New()
	g := r.Group("/organizations/:id", func(c *gin.Context) {
		c.Set(middleware.ContextOrganizationID, f.orgID)
		c.Next()
	})
	g.GET("/schemes/:schemeId/levy-schedules", h.ListSchedules)
	g.POST("/schemes/:schemeId/levy-schedules", h.CreateSchedule)
	g.GET("/levy-schedules/:scheduleId", h.GetSchedule)
	g.POST("/levy-schedules/:scheduleId/generate", h.Generate)
	g.DELETE("/levy-schedules/:scheduleId", h.DeleteSchedule)
	f.router = r
	return f
}

func (f *handlerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/organizations/"+f.orgID.String()+path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *handlerFixture) createSchedule(t *testing.T, budget int64) uuid.UUID {
	t.Helper()
	body := `{"name":"Q1 admin fund","budget_cents":` + jsonInt(budget) + `,"period_start":"2026-01-01","period_end":"2026-03-31"}`
	w := f.do(http.MethodPost, "/schemes/"+f.schemeID.String()+"/levy-schedules", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res struct {
		Data models.LevySchedule `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res.Data.ID
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestCreateSchedule_Validation(t *testing.T) {
	f := newHandlerFixture(t, staticFeatures{})
	path := "/schemes/" + f.schemeID.String() + "/levy-schedules"

	tests := []struct {
		name string
		body string
		want string
	}{
		{"zero budget", `{"name":"Q1","budget_cents":0,"period_start":"2026-01-01","period_end":"2026-03-31"}`, "at least 1 cent"},
		{"missing name", `{"budget_cents":100,"period_start":"2026-01-01","period_end":"2026-03-31"}`, "name is required"},
		{"end before start", `{"name":"Q1","budget_cents":100,"period_start":"2026-03-31","period_end":"2026-01-01"}`, "period_end"},
		{"bad date", `{"name":"Q1","budget_cents":100,"period_start":"01/01/2026","period_end":"2026-03-31"}`, "period_start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}

	w := f.do(http.MethodPost, "/schemes/"+uuid.NewString()+"/levy-schedules",
		`{"name":"Q1","budget_cents":100,"period_start":"2026-01-01","period_end":"2026-01-01"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerateEndpoint(t *testing.T) {
	f := newHandlerFixture(t, staticFeatures{})
	id := f.createSchedule(t, 100)

	w := f.do(http.MethodPost, "/levy-schedules/"+id.String()+"/generate", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Data GenerateResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 3, res.Data.ItemsCreated)
	assert.Equal(t, "1 cent allocated to lot with largest remainder", res.Data.Note)
	assert.Empty(t, f.mailer.jobs)

	w = f.do(http.MethodPost, "/levy-schedules/"+id.String()+"/generate", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodPost, "/levy-schedules/"+id.String()+"/generate?replace=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"replaced":3`)

	w = f.do(http.MethodGet, "/levy-schedules/"+id.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		Data ScheduleDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Len(t, detail.Data.Items, 3)
	assert.Equal(t, models.LevyStatusGenerated, detail.Data.Status)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LevyGenerationsTotal.WithLabelValues("generated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LevyGenerationsTotal.WithLabelValues("conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LevyGenerationsTotal.WithLabelValues("replaced")))

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/levy-schedules/"+id.String()+"/generate?replace=maybe", "").Code)
}

func TestGenerateEndpoint_NotifyNeedsFeature(t *testing.T) {
	f := newHandlerFixture(t, staticFeatures{})
	id := f.createSchedule(t, 100)

	w := f.do(http.MethodPost, "/levy-schedules/"+id.String()+"/generate?notify=true", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, f.store.items[id], "nothing is generated when notify is refused")
}

func TestGenerateEndpoint_Notify(t *testing.T) {
	f := newHandlerFixture(t, staticFeatures{"email_notifications": true})
	id := f.createSchedule(t, 100)

	w := f.do(http.MethodPost, "/levy-schedules/"+id.String()+"/generate?notify=true", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"notices_queued":2`)

	require.Len(t, f.mailer.jobs, 2)
	jane := f.mailer.jobs[0]
	assert.Equal(t, models.EmailTemplateLevyNotice, jane.Template)
	assert.Equal(t, "jane@example.com", jane.Recipient)
	assert.Equal(t, "$0.34", jane.Variables["amount"])
	assert.Equal(t, "1", jane.Variables["lot_number"])
	assert.Equal(t, "Harbour Strata", jane.Variables["organization_name"])
	assert.Equal(t, "Harbour View", jane.Variables["scheme_name"])
	assert.Equal(t, "2026-03-31", jane.Variables["period_end"])
	assert.Equal(t, f.orgID, *jane.OrganizationID)
	assert.Equal(t, "$0.33", f.mailer.jobs[1].Variables["amount"])
}

func TestGenerateEndpoint_NoLots(t *testing.T) {
	f := newHandlerFixture(t, staticFeatures{})
	delete(f.store.lots, f.schemeID)
	id := f.createSchedule(t, 100)

	w := f.do(http.MethodPost, "/levy-schedules/"+id.String()+"/generate", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "scheme has no active lots")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LevyGenerationsTotal.WithLabelValues("invalid")))
}

func TestDeleteScheduleEndpoint(t *testing.T) {
	f := newHandlerFixture(t, staticFeatures{})
	id := f.createSchedule(t, 100)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/levy-schedules/"+id.String()+"/generate", "").Code)

	assert.Equal(t, http.StatusConflict, f.do(http.MethodDelete, "/levy-schedules/"+id.String(), "").Code)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/levy-schedules/"+id.String()+"?cascade=true", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/levy-schedules/"+id.String(), "").Code)
}
