package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/middleware"
	"github.com/stratum-app/backend/internal/models"
)

type memStore struct {
	schemeOrg map[uuid.UUID]uuid.UUID
	portal    map[uuid.UUID]uuid.UUID // user id -> visible scheme
	docs      map[uuid.UUID]*models.Document
	failSave  bool
}

func (m *memStore) CheckScheme(_ context.Context, orgID, schemeID uuid.UUID) error {
	if org, ok := m.schemeOrg[schemeID]; !ok || org != orgID {
		return apperr.NotFound("scheme")
	}
	return nil
}

func (m *memStore) Create(_ context.Context, orgID uuid.UUID, d *models.Document) error {
	if m.failSave {
		return errors.New("db down")
	}
	if m.schemeOrg[d.SchemeID] != orgID {
		return apperr.NotFound("scheme")
	}
	d.CreatedAt = time.Now()
	cp := *d
	m.docs[d.ID] = &cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, orgID, id uuid.UUID) (*models.Document, error) {
	d, ok := m.docs[id]
	if !ok || m.schemeOrg[d.SchemeID] != orgID {
		return nil, apperr.NotFound("document")
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) GetForPortalUser(_ context.Context, userID, id uuid.UUID) (*models.Document, error) {
	d, ok := m.docs[id]
	if !ok || m.portal[userID] != d.SchemeID {
		return nil, apperr.NotFound("document")
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) ListByScheme(_ context.Context, orgID, schemeID uuid.UUID, category string) ([]*models.Document, error) {
	out := []*models.Document{}
	for _, d := range m.docs {
		if d.SchemeID == schemeID && m.schemeOrg[schemeID] == orgID && (category == "" || d.Category == category) {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) Delete(_ context.Context, orgID, id uuid.UUID) error {
	d, ok := m.docs[id]
	if !ok || m.schemeOrg[d.SchemeID] != orgID {
		return apperr.NotFound("document")
	}
	delete(m.docs, id)
	return nil
}

type memObjects struct {
	objects   map[string][]byte
	uploads   int
	failWrite bool
	failDel   bool
}

func (o *memObjects) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) error {
	o.uploads++
	if o.failWrite {
		return errors.New("s3 unavailable")
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	o.objects[key] = b
	return nil
}

func (o *memObjects) PresignDownload(_ context.Context, key, fileName string) (string, time.Time, error) {
	return "https://bucket.example/" + key + "?name=" + fileName, time.Now().Add(15 * time.Minute), nil
}

func (o *memObjects) Delete(_ context.Context, key string) error {
	if o.failDel {
		return errors.New("s3 unavailable")
	}
	delete(o.objects, key)
	return nil
}

type fixture struct {
	router   *gin.Engine
	store    *memStore
	objects  *memObjects
	orgID    uuid.UUID
	schemeID uuid.UUID
	ownerID  uuid.UUID
}

func (f *fixture) base() string {
	return "/organizations/" + f.orgID.String()
}

func setup(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &fixture{orgID: uuid.New(), schemeID: uuid.New(), ownerID: uuid.New()}
	f.store = &memStore{
		schemeOrg: map[uuid.UUID]uuid.UUID{f.schemeID: f.orgID},
		portal:    map[uuid.UUID]uuid.UUID{f.ownerID: f.schemeID},
		docs:      map[uuid.UUID]*models.Document{},
	}
	f.objects = &memObjects{objects: map[string][]byte{}}
	h := NewHandler(f.store, f.objects, nil)

	staff := uuid.New()
	f.router = gin.New()
	org := f.router.Group("/organizations/:id", func(c *gin.Context) {
		c.Set(middleware.ContextOrganizationID, f.orgID)
		c.Set(middleware.ContextUserID, staff)
		c.Next()
	})
	org.POST("/schemes/:schemeId/documents", h.Upload)
	org.GET("/schemes/:schemeId/documents", h.List)
	org.GET("/documents/:docId/download-url", h.DownloadURL)
	org.DELETE("/documents/:docId", h.Delete)
	portal := f.router.Group("/portal", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, f.ownerID)
		c.Next()
	})
	portal.GET("/documents/:docId/download-url", h.PortalDownloadURL)
	return f
}

func uploadRequest(t *testing.T, path, fileName, contentType string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func (f *fixture) upload(t *testing.T, fileName, contentType string, fields map[string]string) *httptest.ResponseRecorder {
	path := f.base() + "/schemes/" + f.schemeID.String() + "/documents"
	return serve(f.router, uploadRequest(t, path, fileName, contentType, []byte("%PDF-1.7 minutes"), fields))
}

func decodeDoc(t *testing.T, w *httptest.ResponseRecorder) models.Document {
	t.Helper()
	var body struct {
		Data models.Document `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Data
}

func TestUpload(t *testing.T) {
	f := setup(t)

	w := f.upload(t, "AGM Minutes.pdf", "application/pdf", map[string]string{"title": "AGM 2026", "category": "Minutes"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	doc := decodeDoc(t, w)
	assert.Equal(t, "AGM 2026", doc.Title)
	assert.Equal(t, "minutes", doc.Category)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.NotContains(t, w.Body.String(), "s3_key")

	stored := f.store.docs[doc.ID]
	require.NotNil(t, stored)
	wantKey := "documents/" + f.orgID.String() + "/" + f.schemeID.String() + "/" + doc.ID.String() + ".pdf"
	assert.Equal(t, wantKey, stored.S3Key)
	assert.Equal(t, []byte("%PDF-1.7 minutes"), f.objects.objects[wantKey])
}

func TestUpload_Defaults(t *testing.T) {
	f := setup(t)
	w := f.upload(t, "budget.xlsx", "application/octet-stream", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	doc := decodeDoc(t, w)
	assert.Equal(t, "budget", doc.Title)
	assert.Equal(t, DefaultCategory, doc.Category)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", doc.ContentType)
}

func TestUpload_Rejected(t *testing.T) {
	f := setup(t)

	w := f.upload(t, "payload.exe", "application/octet-stream", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid file type")

	req := httptest.NewRequest(http.MethodPost, f.base()+"/schemes/"+f.schemeID.String()+"/documents", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	assert.Equal(t, http.StatusBadRequest, serve(f.router, req).Code)

	foreign := f.base() + "/schemes/" + uuid.NewString() + "/documents"
	w = serve(f.router, uploadRequest(t, foreign, "a.pdf", "application/pdf", []byte("x"), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, f.objects.objects)
}

func TestUpload_ForeignSchemeNeverReachesStorage(t *testing.T) {
	f := setup(t)
	otherScheme := uuid.New()
	f.store.schemeOrg[otherScheme] = uuid.New()

	w := serve(f.router, uploadRequest(t, f.base()+"/schemes/"+otherScheme.String()+"/documents", "a.pdf", "application/pdf", []byte("%PDF"), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, f.objects.uploads)
	assert.Empty(t, f.store.docs)
}

func TestUpload_StorageFailure(t *testing.T) {
	f := setup(t)
	f.objects.failWrite = true
	w := f.upload(t, "a.pdf", "application/pdf", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Empty(t, f.store.docs)
}

func TestUpload_SaveFailureRemovesObject(t *testing.T) {
	f := setup(t)
	f.store.failSave = true
	w := f.upload(t, "a.pdf", "application/pdf", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, f.objects.uploads)
	assert.Empty(t, f.objects.objects)
}

func TestListAndDownload(t *testing.T) {
	f := setup(t)
	require.Equal(t, http.StatusCreated, f.upload(t, "a.pdf", "application/pdf", map[string]string{"category": "minutes"}).Code)
	doc := decodeDoc(t, f.upload(t, "b.pdf", "application/pdf", map[string]string{"category": "insurance"}))

	w := serve(f.router, httptest.NewRequest(http.MethodGet, f.base()+"/schemes/"+f.schemeID.String()+"/documents?category=insurance", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []models.Document `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, doc.ID, list.Data[0].ID)

	w = serve(f.router, httptest.NewRequest(http.MethodGet, f.base()+"/documents/"+doc.ID.String()+"/download-url", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var link struct {
		Data DownloadURLResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &link))
	assert.Contains(t, link.Data.URL, doc.ID.String()+".pdf")
	assert.True(t, link.Data.ExpiresAt.After(time.Now()))

	other := "/organizations/" + uuid.NewString() + "/documents/" + doc.ID.String() + "/download-url"
	assert.Equal(t, http.StatusNotFound, serve(f.router, httptest.NewRequest(http.MethodGet, other, nil)).Code)
}

func TestPortalDownloadURL(t *testing.T) {
	f := setup(t)
	doc := decodeDoc(t, f.upload(t, "a.pdf", "application/pdf", nil))

	w := serve(f.router, httptest.NewRequest(http.MethodGet, "/portal/documents/"+doc.ID.String()+"/download-url", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	f.store.portal[f.ownerID] = uuid.New()
	w = serve(f.router, httptest.NewRequest(http.MethodGet, "/portal/documents/"+doc.ID.String()+"/download-url", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDelete(t *testing.T) {
	f := setup(t)
	doc := decodeDoc(t, f.upload(t, "a.pdf", "application/pdf", nil))
	path := f.base() + "/documents/" + doc.ID.String()

	f.objects.failDel = true
	assert.Equal(t, http.StatusBadGateway, serve(f.router, httptest.NewRequest(http.MethodDelete, path, nil)).Code)
	assert.Contains(t, f.store.docs, doc.ID, "row is kept when the object could not be removed")

	f.objects.failDel = false
	assert.Equal(t, http.StatusNoContent, serve(f.router, httptest.NewRequest(http.MethodDelete, path, nil)).Code)
	assert.Empty(t, f.store.docs)
	assert.Empty(t, f.objects.objects)
	assert.Equal(t, http.StatusNotFound, serve(f.router, httptest.NewRequest(http.MethodDelete, path, nil)).Code)
}

func TestUnconfiguredStorage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(&memStore{}, nil, nil)
	r := gin.New()
	r.GET("/documents/:docId/download-url", h.DownloadURL)
	w := serve(r, httptest.NewRequest(http.MethodGet, "/documents/"+uuid.NewString()+"/download-url", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
