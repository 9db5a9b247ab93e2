package lots

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/middleware"
	"github.com/stratum-app/backend/internal/models"
)

type memStore struct {
	schemeOrg map[uuid.UUID]uuid.UUID
	lots      map[uuid.UUID]*models.Lot
}

func (m *memStore) owned(orgID, schemeID uuid.UUID) bool {
	return m.schemeOrg[schemeID] == orgID
}

func (m *memStore) Create(_ context.Context, orgID uuid.UUID, l *models.Lot) error {
	if !m.owned(orgID, l.SchemeID) {
		return apperr.NotFound("scheme")
	}
	for _, existing := range m.lots {
		if existing.SchemeID == l.SchemeID && existing.LotNumber == l.LotNumber {
			return apperr.Conflict("lot %d already exists in this scheme", l.LotNumber)
		}
	}
	l.ID = uuid.New()
	l.Status = models.StatusActive
	cp := *l
	m.lots[l.ID] = &cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, orgID, id uuid.UUID) (*models.Lot, error) {
	l, ok := m.lots[id]
	if !ok || !m.owned(orgID, l.SchemeID) {
		return nil, apperr.NotFound("lot")
	}
	cp := *l
	return &cp, nil
}

func (m *memStore) ListByScheme(_ context.Context, orgID, schemeID uuid.UUID, status string) ([]*models.Lot, error) {
	var out []*models.Lot
	for _, l := range m.lots {
		if l.SchemeID == schemeID && m.owned(orgID, schemeID) && (status == "" || l.Status == status) {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) Update(_ context.Context, orgID uuid.UUID, l *models.Lot) error {
	existing, ok := m.lots[l.ID]
	if !ok || !m.owned(orgID, existing.SchemeID) {
		return apperr.NotFound("lot")
	}
	existing.LotNumber, existing.UnitNumber, existing.Entitlement = l.LotNumber, l.UnitNumber, l.Entitlement
	l.SchemeID, l.Status = existing.SchemeID, existing.Status
	return nil
}

func (m *memStore) SetStatus(_ context.Context, orgID, id uuid.UUID, status string) (*models.Lot, error) {
	l, ok := m.lots[id]
	if !ok || !m.owned(orgID, l.SchemeID) {
		return nil, apperr.NotFound("lot")
	}
	l.Status = status
	cp := *l
	return &cp, nil
}

func setup(t *testing.T) (*gin.Engine, *memStore, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	orgID, schemeID := uuid.New(), uuid.New()
	store := &memStore{schemeOrg: map[uuid.UUID]uuid.UUID{schemeID: orgID}, lots: map[uuid.UUID]*models.Lot{}}
	h := NewHandler(store, nil)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextOrganizationID, orgID)
		c.Next()
	})
	r.GET("/organizations/:id/schemes/:schemeId/lots", h.List)
	r.POST("/organizations/:id/schemes/:schemeId/lots", h.Create)
	r.GET("/organizations/:id/lots/:lotId", h.Get)
	r.PUT("/organizations/:id/lots/:lotId", h.Update)
	r.DELETE("/organizations/:id/lots/:lotId", h.Deactivate)
	r.POST("/organizations/:id/lots/:lotId/activate", h.Activate)
	return r, store, "/organizations/" + orgID.String() + "/schemes/" + schemeID.String() + "/lots"
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateLot(t *testing.T) {
	r, store, base := setup(t)

	w := do(r, http.MethodPost, base, `{"lot_number":1,"unit_number":"101","entitlement":"12.5"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var body struct {
		Data models.Lot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Data.Entitlement.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, models.StatusActive, store.lots[body.Data.ID].Status)

	w = do(r, http.MethodPost, base, `{"lot_number":2,"entitlement":7}`)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestCreateLot_Validation(t *testing.T) {
	r, _, base := setup(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"zero entitlement", `{"lot_number":1,"entitlement":0}`, http.StatusBadRequest},
		{"negative entitlement", `{"lot_number":1,"entitlement":"-2"}`, http.StatusBadRequest},
		{"missing entitlement", `{"lot_number":1}`, http.StatusBadRequest},
		{"negative lot number", `{"lot_number":-3,"entitlement":1}`, http.StatusBadRequest},
		{"missing lot number", `{"entitlement":1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, do(r, http.MethodPost, base, tt.body).Code)
		})
	}
}

func TestCreateLot_DuplicateNumberConflicts(t *testing.T) {
	r, _, base := setup(t)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, base, `{"lot_number":4,"entitlement":1}`).Code)

	w := do(r, http.MethodPost, base, `{"lot_number":4,"entitlement":2}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "lot 4 already exists")
}

func TestCreateLot_ForeignSchemeNotFound(t *testing.T) {
	r, _, _ := setup(t)
	orgPath := "/organizations/" + uuid.NewString() + "/schemes/" + uuid.NewString() + "/lots"
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, orgPath, `{"lot_number":1,"entitlement":1}`).Code)
}

func TestDeactivateAndFilter(t *testing.T) {
	r, store, base := setup(t)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, base, `{"lot_number":1,"entitlement":1}`).Code)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, base, `{"lot_number":2,"entitlement":1}`).Code)

	var target uuid.UUID
	for id, l := range store.lots {
		if l.LotNumber == 2 {
			target = id
		}
	}
	orgPrefix := base[:strings.Index(base, "/schemes/")]
	require.Equal(t, http.StatusOK, do(r, http.MethodDelete, orgPrefix+"/lots/"+target.String(), "").Code)

	w := do(r, http.MethodGet, base+"?status=active", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []models.Lot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, 1, body.Data[0].LotNumber)

	require.Equal(t, http.StatusOK, do(r, http.MethodPost, orgPrefix+"/lots/"+target.String()+"/activate", "").Code)
	assert.Equal(t, models.StatusActive, store.lots[target].Status)
}
