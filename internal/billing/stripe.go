package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// ErrInvalidSignature is returned for webhook payloads that fail verification.
var ErrInvalidSignature = errors.New("invalid stripe signature")

// RemoteSubscription is the part of a Stripe subscription the tier logic needs.
type RemoteSubscription struct {
	ID               string
	CustomerID       string
	Status           string
	PriceID          string
	OrganizationID   string // from subscription metadata, when set at checkout
	CurrentPeriodEnd time.Time
}

// WebhookEvent is a verified Stripe event. Subscription is set for customer.subscription.* events.
type WebhookEvent struct {
	ID           string
	Type         string
	Subscription *RemoteSubscription
}

// Provider is the payment collaborator.
type Provider interface {
	CreateCustomer(ctx context.Context, orgID uuid.UUID, name string) (string, error)
	PortalSessionURL(ctx context.Context, customerID, returnURL string) (string, error)
	// CurrentSubscription returns the customer's live subscription, or nil when there is none.
	CurrentSubscription(ctx context.Context, customerID string) (*RemoteSubscription, error)
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// StripeProvider talks to Stripe. The API client is created on first use and shared.
type StripeProvider struct {
	secretKey     string
	webhookSecret string

	once sync.Once
	api  *client.API
}

// NewStripeProvider creates a provider for the given credentials.
func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	return &StripeProvider{secretKey: secretKey, webhookSecret: webhookSecret}
}

func (p *StripeProvider) client() *client.API {
	p.once.Do(func() {
		p.api = client.New(p.secretKey, nil)
	})
	return p.api
}

// CreateCustomer creates a Stripe customer tagged with the organization id.
func (p *StripeProvider) CreateCustomer(ctx context.Context, orgID uuid.UUID, name string) (string, error) {
	params := &stripe.CustomerParams{Name: stripe.String(name)}
	params.Context = ctx
	params.AddMetadata("organization_id", orgID.String())
	c, err := p.client().Customers.New(params)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// PortalSessionURL opens a billing portal session and returns its redirect URL.
func (p *StripeProvider) PortalSessionURL(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	s, err := p.client().BillingPortalSessions.New(params)
	if err != nil {
		return "", err
	}
	return s.URL, nil
}

// CurrentSubscription prefers an active or trialing subscription and otherwise returns the most recent one.
func (p *StripeProvider) CurrentSubscription(ctx context.Context, customerID string) (*RemoteSubscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(10)

	var latest *RemoteSubscription
	it := p.client().Subscriptions.List(params)
	for it.Next() {
		rs := toRemote(it.Subscription())
		if rs.Status == string(stripe.SubscriptionStatusActive) || rs.Status == string(stripe.SubscriptionStatusTrialing) {
			return rs, nil
		}
		if latest == nil {
			latest = rs
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return latest, nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes subscription events.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if strings.HasPrefix(out.Type, "customer.subscription.") {
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		out.Subscription = toRemote(&sub)
	}
	return out, nil
}

func toRemote(s *stripe.Subscription) *RemoteSubscription {
	rs := &RemoteSubscription{ID: s.ID, Status: string(s.Status)}
	if s.Customer != nil {
		rs.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
		rs.PriceID = s.Items.Data[0].Price.ID
	}
	if s.Metadata != nil {
		rs.OrganizationID = s.Metadata["organization_id"]
	}
	if s.CurrentPeriodEnd > 0 {
		rs.CurrentPeriodEnd = time.Unix(s.CurrentPeriodEnd, 0).UTC()
	}
	return rs
}
