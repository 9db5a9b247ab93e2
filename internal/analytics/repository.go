package analytics

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/pkg/database"
)

// Repository aggregates per-scheme figures.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an analytics repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SchemeSummary returns the aggregate figures of a scheme owned by orgID.
func (r *Repository) SchemeSummary(ctx context.Context, orgID, schemeID uuid.UUID) (*Summary, error) {
	const q = `SELECT s.id, s.name,
			(SELECT COUNT(*) FROM lots l WHERE l.scheme_id = s.id AND l.status = 'active'),
			(SELECT COUNT(*) FROM lots l WHERE l.scheme_id = s.id AND l.status = 'inactive'),
			(SELECT COALESCE(SUM(l.entitlement), 0)::text FROM lots l WHERE l.scheme_id = s.id AND l.status = 'active'),
			(SELECT COUNT(*) FROM levy_schedules ls WHERE ls.scheme_id = s.id),
			(SELECT COUNT(*) FROM levy_schedules ls WHERE ls.scheme_id = s.id AND ls.status = 'generated'),
			(SELECT COALESCE(SUM(li.amount_cents), 0) FROM levy_items li
				JOIN levy_schedules ls ON ls.id = li.schedule_id WHERE ls.scheme_id = s.id),
			(SELECT COUNT(*) FROM documents d WHERE d.scheme_id = s.id)
		FROM schemes s
		WHERE s.id = $1 AND s.organization_id = $2`
	var (
		sum         Summary
		entitlement string
	)
	err := r.pool.QueryRow(ctx, q, schemeID, orgID).Scan(
		&sum.SchemeID, &sum.SchemeName,
		&sum.ActiveLots, &sum.InactiveLots, &entitlement,
		&sum.LevySchedules, &sum.GeneratedSchedules, &sum.TotalLeviedCents,
		&sum.Documents,
	)
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("scheme")
	}
	if err != nil {
		return nil, err
	}
	if sum.TotalEntitlement, err = decimal.NewFromString(entitlement); err != nil {
		return nil, err
	}

	// Owners are counted once per scheme even when they hold several lots in it.
	const ownersQ = `SELECT
			CASE
				WHEN o.portal_activated_at IS NOT NULL THEN 'activated'
				WHEN o.portal_accepted_at IS NOT NULL THEN 'accepted'
				WHEN o.portal_invited_at IS NOT NULL THEN 'invited'
				ELSE 'no_access'
			END AS state,
			COUNT(DISTINCT o.id)
		FROM owners o
		JOIN owner_lots ol ON ol.owner_id = o.id
		JOIN lots l ON l.id = ol.lot_id
		WHERE l.scheme_id = $1 AND o.organization_id = $2
		GROUP BY state`
	rows, err := r.pool.Query(ctx, ownersQ, schemeID, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sum.OwnersByPortalState = map[string]int{}
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		sum.OwnersByPortalState[state] = n
		sum.Owners += n
	}
	return &sum, rows.Err()
}
