package documents

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/pkg/database"
)

const documentColumns = `d.id, d.scheme_id, d.title, d.category, d.file_name, d.content_type, d.size_bytes, d.s3_key, d.uploaded_by, d.created_at`

// Repository handles document metadata. Objects themselves live in S3.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a document repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CheckScheme returns NotFound unless schemeID belongs to orgID.
func (r *Repository) CheckScheme(ctx context.Context, orgID, schemeID uuid.UUID) error {
	const q = `SELECT EXISTS (SELECT 1 FROM schemes WHERE id = $1 AND organization_id = $2)`
	var ok bool
	if err := r.pool.QueryRow(ctx, q, schemeID, orgID).Scan(&ok); err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("scheme")
	}
	return nil
}

// Create inserts document metadata for a scheme owned by orgID. d.ID must be set; it is part of the S3 key.
func (r *Repository) Create(ctx context.Context, orgID uuid.UUID, d *models.Document) error {
	const q = `INSERT INTO documents (id, scheme_id, title, category, file_name, content_type, size_bytes, s3_key, uploaded_by)
		SELECT $1, s.id, $4, $5, $6, $7, $8, $9, $10
		FROM schemes s WHERE s.id = $2 AND s.organization_id = $3
		RETURNING created_at`
	err := r.pool.QueryRow(ctx, q, d.ID, d.SchemeID, orgID, d.Title, d.Category, d.FileName, d.ContentType, d.SizeBytes, d.S3Key, d.UploadedBy).
		Scan(&d.CreatedAt)
	if database.IsNoRows(err) {
		return apperr.NotFound("scheme")
	}
	return err
}

// GetByID returns a document whose scheme belongs to orgID.
func (r *Repository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Document, error) {
	const q = `SELECT ` + documentColumns + `
		FROM documents d JOIN schemes s ON s.id = d.scheme_id
		WHERE d.id = $1 AND s.organization_id = $2`
	d, err := scanDocument(r.pool.QueryRow(ctx, q, id, orgID))
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("document")
	}
	return d, err
}

// GetForPortalUser returns a document visible to an activated portal user through one of their lots.
func (r *Repository) GetForPortalUser(ctx context.Context, userID, id uuid.UUID) (*models.Document, error) {
	const q = `SELECT ` + documentColumns + `
		FROM documents d
		WHERE d.id = $1 AND EXISTS (
			SELECT 1 FROM owners o
			JOIN owner_lots ol ON ol.owner_id = o.id
			JOIN lots l ON l.id = ol.lot_id
			WHERE l.scheme_id = d.scheme_id AND o.portal_user_id = $2 AND o.portal_activated_at IS NOT NULL
		)`
	d, err := scanDocument(r.pool.QueryRow(ctx, q, id, userID))
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("document")
	}
	return d, err
}

// ListByScheme returns a scheme's documents, newest first.
func (r *Repository) ListByScheme(ctx context.Context, orgID, schemeID uuid.UUID, category string) ([]*models.Document, error) {
	const q = `SELECT ` + documentColumns + `
		FROM documents d JOIN schemes s ON s.id = d.scheme_id
		WHERE d.scheme_id = $1 AND s.organization_id = $2 AND ($3 = '' OR d.category = $3)
		ORDER BY d.created_at DESC`
	rows, err := r.pool.Query(ctx, q, schemeID, orgID, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// Delete removes a document row.
func (r *Repository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	const q = `DELETE FROM documents d USING schemes s
		WHERE d.id = $1 AND s.id = d.scheme_id AND s.organization_id = $2`
	tag, err := r.pool.Exec(ctx, q, id, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("document")
	}
	return nil
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(&d.ID, &d.SchemeID, &d.Title, &d.Category, &d.FileName, &d.ContentType, &d.SizeBytes, &d.S3Key, &d.UploadedBy, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
