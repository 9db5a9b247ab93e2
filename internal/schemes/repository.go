package schemes

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/pkg/database"
)

const schemeColumns = `id, organization_id, name, number, address, status, created_at, updated_at`

// Repository handles scheme persistence. Every query is scoped to an organization.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a scheme repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new active scheme. A duplicate number within the organization is a Conflict.
func (r *Repository) Create(ctx context.Context, s *models.Scheme) error {
	const q = `INSERT INTO schemes (organization_id, name, number, address, status)
		VALUES ($1, $2, $3, $4, 'active')
		RETURNING id, status, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, s.OrganizationID, s.Name, s.Number, s.Address).
		Scan(&s.ID, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if database.IsUniqueViolation(err) {
		return apperr.Conflict("scheme number %s already exists", s.Number)
	}
	return err
}

// GetByID returns a scheme owned by orgID.
func (r *Repository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Scheme, error) {
	const q = `SELECT ` + schemeColumns + ` FROM schemes WHERE id = $1 AND organization_id = $2`
	s, err := scanScheme(r.pool.QueryRow(ctx, q, id, orgID))
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("scheme")
	}
	return s, err
}

// List returns an organization's schemes ordered by number. An empty status lists all.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID, status string) ([]*models.Scheme, error) {
	const q = `SELECT ` + schemeColumns + ` FROM schemes
		WHERE organization_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY number, created_at`
	rows, err := r.pool.Query(ctx, q, orgID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.Scheme
	for rows.Next() {
		s, err := scanScheme(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// CountActive returns the number of active schemes in an organization.
func (r *Repository) CountActive(ctx context.Context, orgID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(*) FROM schemes WHERE organization_id = $1 AND status = 'active'`
	var n int
	err := r.pool.QueryRow(ctx, q, orgID).Scan(&n)
	return n, err
}

// Update changes a scheme's descriptive fields.
func (r *Repository) Update(ctx context.Context, s *models.Scheme) error {
	const q = `UPDATE schemes SET name = $3, number = $4, address = $5, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
		RETURNING status, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, s.ID, s.OrganizationID, s.Name, s.Number, s.Address).
		Scan(&s.Status, &s.CreatedAt, &s.UpdatedAt)
	switch {
	case database.IsNoRows(err):
		return apperr.NotFound("scheme")
	case database.IsUniqueViolation(err):
		return apperr.Conflict("scheme number %s already exists", s.Number)
	}
	return err
}

// SetStatus activates or deactivates a scheme. Schemes are never hard-deleted.
func (r *Repository) SetStatus(ctx context.Context, orgID, id uuid.UUID, status string) (*models.Scheme, error) {
	const q = `UPDATE schemes SET status = $3, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
		RETURNING ` + schemeColumns
	s, err := scanScheme(r.pool.QueryRow(ctx, q, id, orgID, status))
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("scheme")
	}
	return s, err
}

func scanScheme(row pgx.Row) (*models.Scheme, error) {
	var s models.Scheme
	if err := row.Scan(&s.ID, &s.OrganizationID, &s.Name, &s.Number, &s.Address, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
