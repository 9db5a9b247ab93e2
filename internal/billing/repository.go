package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/pkg/database"
)

// Repository handles the cached subscription rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a billing repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetSubscription returns the organization's subscription, or apperr.NotFound if it never had one.
func (r *Repository) GetSubscription(ctx context.Context, orgID uuid.UUID) (*models.Subscription, error) {
	const q = `SELECT organization_id, stripe_subscription_id, tier, status, current_period_end, updated_at
		FROM subscriptions WHERE organization_id = $1`
	var s models.Subscription
	err := r.pool.QueryRow(ctx, q, orgID).Scan(&s.OrganizationID, &s.StripeSubscriptionID, &s.Tier, &s.Status, &s.CurrentPeriodEnd, &s.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("subscription")
		}
		return nil, err
	}
	return &s, nil
}

// UpsertSubscription stores the latest known subscription state.
func (r *Repository) UpsertSubscription(ctx context.Context, s *models.Subscription) error {
	const q = `INSERT INTO subscriptions (organization_id, stripe_subscription_id, tier, status, current_period_end)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (organization_id) DO UPDATE SET
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			tier = EXCLUDED.tier,
			status = EXCLUDED.status,
			current_period_end = EXCLUDED.current_period_end,
			updated_at = NOW()
		RETURNING updated_at`
	return r.pool.QueryRow(ctx, q, s.OrganizationID, s.StripeSubscriptionID, s.Tier, s.Status, s.CurrentPeriodEnd).Scan(&s.UpdatedAt)
}
