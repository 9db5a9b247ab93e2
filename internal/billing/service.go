package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/internal/organizations"
)

// ErrOffline is returned when no Stripe credentials are configured.
var ErrOffline = errors.New("billing is not configured")

// Accounts is the organization side of billing.
type Accounts interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	StripeCustomerID(ctx context.Context, orgID uuid.UUID) (string, error)
	SetStripeCustomerID(ctx context.Context, orgID uuid.UUID, customerID string) error
	OrganizationByStripeCustomer(ctx context.Context, customerID string) (uuid.UUID, error)
	ListBillingAccounts(ctx context.Context) ([]organizations.BillingAccount, error)
}

// SubscriptionStore reads and writes the cached subscription row.
type SubscriptionStore interface {
	SubscriptionReader
	UpsertSubscription(ctx context.Context, s *models.Subscription) error
}

// Service connects organizations to Stripe and keeps their cached tier current.
type Service struct {
	provider   Provider // nil when billing is offline
	accounts   Accounts
	subs       SubscriptionStore
	tiers      *TierService
	priceTiers map[string]string
	returnURL  string
	logger     *zap.Logger
}

// ServiceConfig carries the Stripe settings the service needs.
type ServiceConfig struct {
	PriceTiers map[string]string
	ReturnURL  string
}

// NewService creates a billing service. A nil provider runs billing offline.
func NewService(provider Provider, accounts Accounts, subs SubscriptionStore, tiers *TierService, cfg ServiceConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		provider:   provider,
		accounts:   accounts,
		subs:       subs,
		tiers:      tiers,
		priceTiers: cfg.PriceTiers,
		returnURL:  cfg.ReturnURL,
		logger:     logger,
	}
}

// Online reports whether a payment provider is configured.
func (s *Service) Online() bool { return s.provider != nil }

// EnsureCustomer returns the organization's Stripe customer, creating one if needed.
func (s *Service) EnsureCustomer(ctx context.Context, orgID uuid.UUID) (string, error) {
	if s.provider == nil {
		return "", apperr.Validation(ErrOffline.Error())
	}
	id, err := s.accounts.StripeCustomerID(ctx, orgID)
	if err != nil || id != "" {
		return id, err
	}
	org, err := s.accounts.GetByID(ctx, orgID)
	if err != nil {
		return "", err
	}
	id, err = s.provider.CreateCustomer(ctx, orgID, org.Name)
	if err != nil {
		return "", apperr.Collaborator("stripe", err)
	}
	if err := s.accounts.SetStripeCustomerID(ctx, orgID, id); err != nil {
		return "", err
	}
	return id, nil
}

// CreatePortalSession returns a Stripe billing portal URL for the organization.
func (s *Service) CreatePortalSession(ctx context.Context, orgID uuid.UUID) (string, error) {
	if s.provider == nil {
		return "", apperr.Validation(ErrOffline.Error())
	}
	customerID, err := s.accounts.StripeCustomerID(ctx, orgID)
	if err != nil {
		return "", err
	}
	if customerID == "" {
		return "", apperr.Validation("organisation has no billing account")
	}
	url, err := s.provider.PortalSessionURL(ctx, customerID, s.returnURL)
	if err != nil {
		return "", apperr.Collaborator("stripe", err)
	}
	return url, nil
}

// SyncSubscription pulls the organization's subscription from Stripe and refreshes the cached tier.
func (s *Service) SyncSubscription(ctx context.Context, orgID uuid.UUID) (*models.Subscription, error) {
	if s.provider == nil {
		return nil, apperr.Validation(ErrOffline.Error())
	}
	customerID, err := s.accounts.StripeCustomerID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if customerID == "" {
		return nil, apperr.Validation("organisation has no billing account")
	}
	remote, err := s.provider.CurrentSubscription(ctx, customerID)
	if err != nil {
		return nil, apperr.Collaborator("stripe", err)
	}
	return s.apply(ctx, orgID, remote)
}

// SyncAll refreshes every organization linked to Stripe. Failures are logged and skipped.
func (s *Service) SyncAll(ctx context.Context) (synced, failed int, err error) {
	if s.provider == nil {
		s.logger.Debug("billing offline; skipping subscription sync")
		return 0, 0, nil
	}
	accounts, err := s.accounts.ListBillingAccounts(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, a := range accounts {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		if _, err := s.SyncSubscription(ctx, a.OrganizationID); err != nil {
			failed++
			s.logger.Warn("subscription sync failed", zap.Error(err), zap.String("organization_id", a.OrganizationID.String()))
			continue
		}
		synced++
	}
	return synced, failed, nil
}

// HandleWebhook verifies a Stripe event and applies subscription changes. Other events are acknowledged.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	if s.provider == nil {
		return nil, ErrOffline
	}
	ev, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		return nil, err
	}
	if ev.Subscription == nil {
		return ev, nil
	}

	orgID, err := s.resolveOrganization(ctx, ev.Subscription)
	if err != nil {
		if apperr.IsNotFound(err) {
			s.logger.Warn("stripe event for unknown customer", zap.String("event_id", ev.ID), zap.String("customer_id", ev.Subscription.CustomerID))
			return ev, nil
		}
		return nil, err
	}
	remote := ev.Subscription
	if ev.Type == "customer.subscription.deleted" {
		stale, err := s.supersededCancellation(ctx, orgID, remote.ID)
		if err != nil {
			return nil, err
		}
		if stale {
			s.logger.Info("ignoring cancellation of a replaced subscription",
				zap.String("event_id", ev.ID), zap.String("subscription_id", remote.ID))
			return ev, nil
		}
		remote.Status = "canceled"
	}
	if _, err := s.apply(ctx, orgID, remote); err != nil {
		return nil, err
	}
	return ev, nil
}

// supersededCancellation reports whether the stored subscription is not the cancelled one, i.e. the
// deletion arrived after a replacement subscription was recorded.
func (s *Service) supersededCancellation(ctx context.Context, orgID uuid.UUID, subscriptionID string) (bool, error) {
	stored, err := s.subs.GetSubscription(ctx, orgID)
	if apperr.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stored.StripeSubscriptionID != nil && *stored.StripeSubscriptionID != "" &&
		*stored.StripeSubscriptionID != subscriptionID, nil
}

func (s *Service) resolveOrganization(ctx context.Context, rs *RemoteSubscription) (uuid.UUID, error) {
	orgID, err := s.accounts.OrganizationByStripeCustomer(ctx, rs.CustomerID)
	if err == nil || !apperr.IsNotFound(err) || rs.OrganizationID == "" {
		return orgID, err
	}
	// customer created outside the app; fall back to checkout metadata and remember the link
	orgID, perr := uuid.Parse(rs.OrganizationID)
	if perr != nil {
		return uuid.Nil, err
	}
	if _, gerr := s.accounts.GetByID(ctx, orgID); gerr != nil {
		return uuid.Nil, gerr
	}
	if err := s.accounts.SetStripeCustomerID(ctx, orgID, rs.CustomerID); err != nil {
		return uuid.Nil, err
	}
	return orgID, nil
}

// apply stores remote (nil meaning no subscription) as the organization's cached subscription.
func (s *Service) apply(ctx context.Context, orgID uuid.UUID, remote *RemoteSubscription) (*models.Subscription, error) {
	sub := &models.Subscription{OrganizationID: orgID, Tier: string(TierFree), Status: "none"}
	if remote != nil {
		sub.StripeSubscriptionID = &remote.ID
		sub.Status = remote.Status
		if !remote.CurrentPeriodEnd.IsZero() {
			end := remote.CurrentPeriodEnd
			sub.CurrentPeriodEnd = &end
		}
		tier, ok := s.priceTiers[remote.PriceID]
		if !ok {
			s.logger.Warn("stripe price has no tier mapping", zap.String("price_id", remote.PriceID), zap.String("organization_id", orgID.String()))
		}
		sub.Tier = string(ParseTier(tier))
	}
	if err := s.subs.UpsertSubscription(ctx, sub); err != nil {
		return nil, err
	}
	if s.tiers != nil {
		s.tiers.Invalidate(orgID)
	}
	s.logger.Info("subscription updated",
		zap.String("organization_id", orgID.String()),
		zap.String("tier", sub.Tier),
		zap.String("status", sub.Status),
	)
	return sub, nil
}
