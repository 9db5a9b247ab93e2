package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/metrics"
	"github.com/stratum-app/backend/internal/models"
)

// SubscriptionReader loads the cached subscription row.
type SubscriptionReader interface {
	GetSubscription(ctx context.Context, orgID uuid.UUID) (*models.Subscription, error)
}

// TierService resolves an organization's effective tier through a short-lived in-process cache.
type TierService struct {
	subs    SubscriptionReader
	cache   *expirable.LRU[uuid.UUID, Tier]
	metrics *metrics.Metrics
}

// NewTierService creates a tier service caching up to size organizations for ttl.
func NewTierService(subs SubscriptionReader, size int, ttl time.Duration, m *metrics.Metrics) *TierService {
	return &TierService{
		subs:    subs,
		cache:   expirable.NewLRU[uuid.UUID, Tier](size, nil, ttl),
		metrics: m,
	}
}

// EffectiveTier is the tier a subscription grants. Only active or trialing subscriptions count.
func EffectiveTier(s *models.Subscription) Tier {
	if s == nil {
		return TierFree
	}
	switch s.Status {
	case "active", "trialing":
		return ParseTier(s.Tier)
	default:
		return TierFree
	}
}

// TierFor returns the organization's effective tier. Organizations without a subscription are free.
func (s *TierService) TierFor(ctx context.Context, orgID uuid.UUID) (Tier, error) {
	if t, ok := s.cache.Get(orgID); ok {
		s.metrics.TierLookup(true)
		return t, nil
	}
	s.metrics.TierLookup(false)

	sub, err := s.subs.GetSubscription(ctx, orgID)
	if err != nil && !apperr.IsNotFound(err) {
		return TierFree, err
	}
	t := EffectiveTier(sub)
	s.cache.Add(orgID, t)
	return t, nil
}

// FeatureAllowed reports whether the organization's tier unlocks feature.
func (s *TierService) FeatureAllowed(ctx context.Context, orgID uuid.UUID, feature string) (bool, error) {
	t, err := s.TierFor(ctx, orgID)
	if err != nil {
		return false, err
	}
	return Allowed(feature, t), nil
}

// Invalidate drops the cached tier after a subscription change.
func (s *TierService) Invalidate(orgID uuid.UUID) {
	s.cache.Remove(orgID)
}
