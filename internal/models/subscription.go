package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription caches an organisation's billing tier as last seen from Stripe.
type Subscription struct {
	OrganizationID       uuid.UUID  `json:"organization_id"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id,omitempty"`
	Tier                 string     `json:"tier"`
	Status               string     `json:"status"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
	UpdatedAt            time.Time  `json:"updated_at"`
}
