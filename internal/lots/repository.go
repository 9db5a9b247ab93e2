package lots

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/pkg/database"
)

// Lots are reached through their scheme, so every query joins schemes to check the organization.
const lotColumns = `l.id, l.scheme_id, l.lot_number, l.unit_number, l.entitlement::text, l.status, l.created_at, l.updated_at`

// Repository handles lot persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a lot repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts an active lot into a scheme owned by orgID.
func (r *Repository) Create(ctx context.Context, orgID uuid.UUID, l *models.Lot) error {
	const q = `INSERT INTO lots (scheme_id, lot_number, unit_number, entitlement, status)
		SELECT s.id, $3, $4, $5::numeric, 'active'
		FROM schemes s WHERE s.id = $1 AND s.organization_id = $2
		RETURNING id, status, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, l.SchemeID, orgID, l.LotNumber, l.UnitNumber, l.Entitlement.String()).
		Scan(&l.ID, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	switch {
	case database.IsNoRows(err):
		return apperr.NotFound("scheme")
	case database.IsUniqueViolation(err):
		return apperr.Conflict("lot %d already exists in this scheme", l.LotNumber)
	}
	return err
}

// GetByID returns a lot whose scheme belongs to orgID.
func (r *Repository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Lot, error) {
	const q = `SELECT ` + lotColumns + `
		FROM lots l JOIN schemes s ON s.id = l.scheme_id
		WHERE l.id = $1 AND s.organization_id = $2`
	l, err := scanLot(r.pool.QueryRow(ctx, q, id, orgID))
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("lot")
	}
	return l, err
}

// ListByScheme returns a scheme's lots ordered by lot number. An empty status lists all.
func (r *Repository) ListByScheme(ctx context.Context, orgID, schemeID uuid.UUID, status string) ([]*models.Lot, error) {
	const q = `SELECT ` + lotColumns + `
		FROM lots l JOIN schemes s ON s.id = l.scheme_id
		WHERE l.scheme_id = $1 AND s.organization_id = $2 AND ($3 = '' OR l.status = $3)
		ORDER BY l.lot_number, l.id`
	rows, err := r.pool.Query(ctx, q, schemeID, orgID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.Lot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}

// Update changes a lot's number, unit and entitlement.
func (r *Repository) Update(ctx context.Context, orgID uuid.UUID, l *models.Lot) error {
	const q = `UPDATE lots l SET lot_number = $3, unit_number = $4, entitlement = $5::numeric, updated_at = NOW()
		FROM schemes s
		WHERE l.id = $1 AND s.id = l.scheme_id AND s.organization_id = $2
		RETURNING l.scheme_id, l.status, l.created_at, l.updated_at`
	err := r.pool.QueryRow(ctx, q, l.ID, orgID, l.LotNumber, l.UnitNumber, l.Entitlement.String()).
		Scan(&l.SchemeID, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	switch {
	case database.IsNoRows(err):
		return apperr.NotFound("lot")
	case database.IsUniqueViolation(err):
		return apperr.Conflict("lot %d already exists in this scheme", l.LotNumber)
	}
	return err
}

// SetStatus activates or deactivates a lot. Inactive lots are excluded from levy generation.
func (r *Repository) SetStatus(ctx context.Context, orgID, id uuid.UUID, status string) (*models.Lot, error) {
	const q = `UPDATE lots l SET status = $3, updated_at = NOW()
		FROM schemes s
		WHERE l.id = $1 AND s.id = l.scheme_id AND s.organization_id = $2
		RETURNING ` + lotColumns
	l, err := scanLot(r.pool.QueryRow(ctx, q, id, orgID, status))
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("lot")
	}
	return l, err
}

func scanLot(row pgx.Row) (*models.Lot, error) {
	var (
		l           models.Lot
		entitlement string
	)
	if err := row.Scan(&l.ID, &l.SchemeID, &l.LotNumber, &l.UnitNumber, &entitlement, &l.Status, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(entitlement)
	if err != nil {
		return nil, err
	}
	l.Entitlement = d
	return &l, nil
}
