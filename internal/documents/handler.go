// Package documents stores scheme documents in S3 and serves pre-signed downloads.
package documents

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratum-app/backend/internal/middleware"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/internal/organizations"
	"github.com/stratum-app/backend/pkg/response"
	"github.com/stratum-app/backend/pkg/storage"
)

// DefaultCategory is used when an upload names none.
const DefaultCategory = "general"

// Store is the metadata persistence used by Handler; *Repository implements it.
type Store interface {
	CheckScheme(ctx context.Context, orgID, schemeID uuid.UUID) error
	Create(ctx context.Context, orgID uuid.UUID, d *models.Document) error
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Document, error)
	GetForPortalUser(ctx context.Context, userID, id uuid.UUID) (*models.Document, error)
	ListByScheme(ctx context.Context, orgID, schemeID uuid.UUID, category string) ([]*models.Document, error)
	Delete(ctx context.Context, orgID, id uuid.UUID) error
}

// ObjectStore holds document bodies; *storage.S3 implements it.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) error
	PresignDownload(ctx context.Context, key, fileName string) (string, time.Time, error)
	Delete(ctx context.Context, key string) error
}

// Handler handles document endpoints.
type Handler struct {
	store   Store
	objects ObjectStore
	logger  *zap.Logger
}

// NewHandler creates a documents handler. A nil objects store makes every endpoint report 503.
func NewHandler(store Store, objects ObjectStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, objects: objects, logger: logger}
}

// DownloadURLResponse is a pre-signed download link.
type DownloadURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) available(c *gin.Context) bool {
	if h.objects == nil {
		response.ServiceUnavailable(c, "document storage is not configured")
		return false
	}
	return true
}

// Upload handles POST /organizations/:id/schemes/:schemeId/documents (multipart: file, title, category).
func (h *Handler) Upload(c *gin.Context) {
	if !h.available(c) {
		return
	}
	schemeID, err := uuid.Parse(c.Param("schemeId"))
	if err != nil {
		response.BadRequest(c, "invalid scheme id")
		return
	}
	orgID := organizations.OrgID(c)
	if err := h.store.CheckScheme(c.Request.Context(), orgID, schemeID); err != nil {
		response.Error(c, err, "failed to load scheme")
		return
	}
	// Leave room for the other multipart fields.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, storage.MaxDocumentSize+1<<20)

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.BadRequest(c, "file size exceeds 20MB limit")
			return
		}
		response.BadRequest(c, "missing file (form field: file)")
		return
	}
	if file.Size > storage.MaxDocumentSize {
		response.BadRequest(c, "file size exceeds 20MB limit")
		return
	}
	ext, contentType, ok := storage.ValidateDocumentType(file.Header.Get("Content-Type"), file.Filename)
	if !ok {
		response.BadRequest(c, "invalid file type: pdf, images, office documents, csv and txt are allowed")
		return
	}

	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		title = strings.TrimSuffix(path.Base(file.Filename), path.Ext(file.Filename))
	}
	category := strings.ToLower(strings.TrimSpace(c.PostForm("category")))
	if category == "" {
		category = DefaultCategory
	}
	if len(title) > 255 || len(category) > 64 {
		response.BadRequest(c, "title or category too long")
		return
	}

	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	doc := &models.Document{
		ID:          uuid.New(),
		SchemeID:    schemeID,
		Title:       title,
		Category:    category,
		FileName:    path.Base(file.Filename),
		ContentType: contentType,
		SizeBytes:   file.Size,
		UploadedBy:  &userID,
	}
	doc.S3Key = storage.DocumentKey(orgID.String(), schemeID.String(), doc.ID.String(), ext)

	rc, err := file.Open()
	if err != nil {
		h.logger.Error("open uploaded file failed", zap.Error(err))
		response.Internal(c, "failed to read file")
		return
	}
	defer rc.Close()

	ctx := c.Request.Context()
	if err := h.objects.Upload(ctx, doc.S3Key, contentType, rc, file.Size); err != nil {
		h.logger.Error("S3 upload failed", zap.Error(err), zap.String("key", doc.S3Key))
		response.BadGateway(c, "failed to upload file to storage")
		return
	}
	// The scheme can still disappear between the check and the insert.
	if err := h.store.Create(ctx, orgID, doc); err != nil {
		if delErr := h.objects.Delete(ctx, doc.S3Key); delErr != nil {
			h.logger.Warn("orphaned document object", zap.Error(delErr), zap.String("key", doc.S3Key))
		}
		response.Error(c, err, "failed to save document")
		return
	}
	h.logger.Info("document uploaded", zap.String("document_id", doc.ID.String()), zap.Int64("size", doc.SizeBytes))
	response.Created(c, doc)
}

// List handles GET /organizations/:id/schemes/:schemeId/documents?category=.
func (h *Handler) List(c *gin.Context) {
	schemeID, err := uuid.Parse(c.Param("schemeId"))
	if err != nil {
		response.BadRequest(c, "invalid scheme id")
		return
	}
	list, err := h.store.ListByScheme(c.Request.Context(), organizations.OrgID(c), schemeID, strings.ToLower(c.Query("category")))
	if err != nil {
		h.logger.Error("list documents failed", zap.Error(err))
		response.Internal(c, "failed to load documents")
		return
	}
	response.OK(c, list)
}

// DownloadURL handles GET /organizations/:id/documents/:docId/download-url.
func (h *Handler) DownloadURL(c *gin.Context) {
	if !h.available(c) {
		return
	}
	id, ok := documentID(c)
	if !ok {
		return
	}
	doc, err := h.store.GetByID(c.Request.Context(), organizations.OrgID(c), id)
	if err != nil {
		response.Error(c, err, "failed to load document")
		return
	}
	h.presign(c, doc)
}

// PortalDownloadURL handles GET /portal/documents/:docId/download-url for owners.
func (h *Handler) PortalDownloadURL(c *gin.Context) {
	if !h.available(c) {
		return
	}
	id, ok := documentID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	doc, err := h.store.GetForPortalUser(c.Request.Context(), userID, id)
	if err != nil {
		response.Error(c, err, "failed to load document")
		return
	}
	h.presign(c, doc)
}

func (h *Handler) presign(c *gin.Context, doc *models.Document) {
	url, expires, err := h.objects.PresignDownload(c.Request.Context(), doc.S3Key, doc.FileName)
	if err != nil {
		h.logger.Error("presign download failed", zap.Error(err), zap.String("document_id", doc.ID.String()))
		response.BadGateway(c, "failed to create download link")
		return
	}
	response.OK(c, DownloadURLResponse{URL: url, ExpiresAt: expires})
}

// Delete handles DELETE /organizations/:id/documents/:docId. The object goes first so a failure leaves the
// row for a retry.
func (h *Handler) Delete(c *gin.Context) {
	if !h.available(c) {
		return
	}
	id, ok := documentID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	orgID := organizations.OrgID(c)
	doc, err := h.store.GetByID(ctx, orgID, id)
	if err != nil {
		response.Error(c, err, "failed to load document")
		return
	}
	if err := h.objects.Delete(ctx, doc.S3Key); err != nil {
		h.logger.Error("S3 delete failed", zap.Error(err), zap.String("key", doc.S3Key))
		response.BadGateway(c, "failed to delete file from storage")
		return
	}
	if err := h.store.Delete(ctx, orgID, id); err != nil {
		response.Error(c, err, "failed to delete document")
		return
	}
	response.NoContent(c)
}

func documentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("docId"))
	if err != nil {
		response.BadRequest(c, "invalid document id")
		return uuid.Nil, false
	}
	return id, true
}
