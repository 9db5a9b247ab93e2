package owners

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/auth"
	"github.com/stratum-app/backend/internal/middleware"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/pkg/queue"
)

type fakeOrgs map[uuid.UUID]string

func (f fakeOrgs) GetByID(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	name, ok := f[id]
	if !ok {
		return nil, apperr.NotFound("organization")
	}
	return &models.Organization{ID: id, Name: name}, nil
}

type fakeMailer struct {
	err  error
	jobs []queue.EmailPayload
}

func (f *fakeMailer) EnqueueEmail(_ context.Context, p queue.EmailPayload) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, p)
	return nil
}

type noReads struct{}

func (noReads) GetByPortalUser(context.Context, uuid.UUID) ([]*models.Owner, error) { return nil, nil }
func (noReads) LeviesForUser(context.Context, uuid.UUID) ([]PortalLevy, error) {
	return []PortalLevy{}, nil
}
func (noReads) DocumentsForUser(context.Context, uuid.UUID) ([]*models.Document, error) {
	return []*models.Document{}, nil
}

type portalFixture struct {
	router  *gin.Engine
	store   *memPortal
	mailer  *fakeMailer
	jwt     *auth.JWTService
	orgID   uuid.UUID
	ownerID uuid.UUID
}

func newPortalFixture(t *testing.T) *portalFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &portalFixture{store: newMemPortal(), mailer: &fakeMailer{}, jwt: auth.NewJWTService("test-secret", auth.SessionTTL{Staff: time.Hour}), orgID: uuid.New()}
	f.ownerID = f.store.add(f.orgID, "Jane Citizen", "jane@example.com")
	svc, _ := newTestService(f.store)
	svc.now = time.Now
	h := NewPortalHandler(svc, fakeOrgs{f.orgID: "Harbour Strata"}, f.mailer, f.jwt, noReads{},
		PortalConfig{BaseURL: "https://app.example.com", InviteTTL: 72 * time.Hour}, nil)

	r := gin.New()
	staff := r.Group("/organizations/:id", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, uuid.New())
		c.Set(middleware.ContextOrganizationID, f.orgID)
		c.Next()
	})
	staff.POST("/owners/:ownerId/portal/invite", h.Invite)
	staff.POST("/owners/:ownerId/portal/reset", h.Reset)
	r.GET("/portal/invitations/:token", h.GetInvitation)
	r.POST("/portal/invitations/:token/accept", h.AcceptInvitation)
	r.POST("/portal/invitations/:token/activate", h.ActivateInvitation)
	f.router = r
	return f
}

func (f *portalFixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *portalFixture) invitePath() string {
	return "/organizations/" + f.orgID.String() + "/owners/" + f.ownerID.String() + "/portal/invite"
}

func TestPortalFlow(t *testing.T) {
	f := newPortalFixture(t)

	w := f.do(http.MethodPost, f.invitePath(), "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var invite struct {
		Data InviteResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &invite))
	assert.True(t, invite.Data.EmailQueued)
	assert.Equal(t, string(StateInvited), invite.Data.Owner.PortalState)

	require.Len(t, f.mailer.jobs, 1)
	job := f.mailer.jobs[0]
	assert.Equal(t, models.EmailTemplatePortalInvite, job.Template)
	assert.Equal(t, "jane@example.com", job.Recipient)
	assert.Equal(t, "Harbour Strata", job.Variables["organization_name"])
	assert.Equal(t, "3 days", job.Variables["expires_in"])
	assert.Equal(t, invite.Data.InviteURL, job.Variables["invite_url"])
	require.True(t, strings.HasPrefix(invite.Data.InviteURL, "https://app.example.com/portal/invite/"))
	token := strings.TrimPrefix(invite.Data.InviteURL, "https://app.example.com/portal/invite/")

	w = f.do(http.MethodGet, "/portal/invitations/"+token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Jane Citizen")

	w = f.do(http.MethodPost, "/portal/invitations/"+token+"/activate", `{"password":"s3cure-pass"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "activation before acceptance")

	w = f.do(http.MethodPost, "/portal/invitations/"+token+"/accept", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/portal/invitations/"+token+"/activate", `{"password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/portal/invitations/"+token+"/activate", `{"password":"s3cure-pass"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var activated struct {
		Data ActivateResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &activated))
	claims, err := f.jwt.Validate(activated.Data.Token)
	require.NoError(t, err)
	assert.Equal(t, string(models.RoleOwner), claims.Role)
	assert.Equal(t, string(StateActivated), f.store.owners[f.ownerID].PortalState)

	w = f.do(http.MethodGet, "/portal/invitations/"+token, "")
	assert.Equal(t, http.StatusNotFound, w.Code, "token is consumed by activation")
}

func TestPortalInvite_EmailFailureStillInvites(t *testing.T) {
	f := newPortalFixture(t)
	f.mailer.err = errors.New("redis down")

	w := f.do(http.MethodPost, f.invitePath(), "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"email_queued":false`)
	assert.Equal(t, string(StateInvited), f.store.owners[f.ownerID].PortalState)
}

func TestPortalReset(t *testing.T) {
	f := newPortalFixture(t)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, f.invitePath(), "").Code)

	w := f.do(http.MethodPost, "/organizations/"+f.orgID.String()+"/owners/"+f.ownerID.String()+"/portal/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(StateNoAccess), f.store.owners[f.ownerID].PortalState)

	w = f.do(http.MethodPost, "/organizations/"+f.orgID.String()+"/owners/"+uuid.NewString()+"/portal/reset", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetInvitation_UnknownToken(t *testing.T) {
	f := newPortalFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/portal/invitations/nope", "").Code)
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "3 days", humanDuration(72*time.Hour))
	assert.Equal(t, "24 hours", humanDuration(24*time.Hour))
	assert.Equal(t, "1 hour", humanDuration(time.Hour))
}
