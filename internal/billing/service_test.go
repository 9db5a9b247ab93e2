package billing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/middleware"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/internal/organizations"
)

type fakeProvider struct {
	customers   int
	portalURL   string
	portalErr   error
	remote      *RemoteSubscription
	event       *WebhookEvent
	eventErr    error
	lastCustReq string
}

func (f *fakeProvider) CreateCustomer(_ context.Context, _ uuid.UUID, name string) (string, error) {
	f.customers++
	f.lastCustReq = name
	return "cus_new", nil
}

func (f *fakeProvider) PortalSessionURL(_ context.Context, customerID, returnURL string) (string, error) {
	if f.portalErr != nil {
		return "", f.portalErr
	}
	return f.portalURL + "?customer=" + customerID + "&return=" + returnURL, nil
}

func (f *fakeProvider) CurrentSubscription(context.Context, string) (*RemoteSubscription, error) {
	return f.remote, nil
}

func (f *fakeProvider) ParseWebhook([]byte, string) (*WebhookEvent, error) {
	return f.event, f.eventErr
}

type fakeAccounts struct {
	orgs      map[uuid.UUID]*models.Organization
	customers map[uuid.UUID]string
}

func newFakeAccounts(orgIDs ...uuid.UUID) *fakeAccounts {
	a := &fakeAccounts{orgs: map[uuid.UUID]*models.Organization{}, customers: map[uuid.UUID]string{}}
	for _, id := range orgIDs {
		a.orgs[id] = &models.Organization{ID: id, Name: "Harbour Strata"}
	}
	return a
}

func (a *fakeAccounts) GetByID(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	o, ok := a.orgs[id]
	if !ok {
		return nil, apperr.NotFound("organization")
	}
	return o, nil
}

func (a *fakeAccounts) StripeCustomerID(_ context.Context, id uuid.UUID) (string, error) {
	if _, ok := a.orgs[id]; !ok {
		return "", apperr.NotFound("organization")
	}
	return a.customers[id], nil
}

func (a *fakeAccounts) SetStripeCustomerID(_ context.Context, id uuid.UUID, customerID string) error {
	a.customers[id] = customerID
	return nil
}

func (a *fakeAccounts) OrganizationByStripeCustomer(_ context.Context, customerID string) (uuid.UUID, error) {
	for id, c := range a.customers {
		if c == customerID {
			return id, nil
		}
	}
	return uuid.Nil, apperr.NotFound("organization for stripe customer")
}

func (a *fakeAccounts) ListBillingAccounts(context.Context) ([]organizations.BillingAccount, error) {
	var out []organizations.BillingAccount
	for id, c := range a.customers {
		out = append(out, organizations.BillingAccount{OrganizationID: id, CustomerID: c})
	}
	return out, nil
}

type billingFixture struct {
	orgID    uuid.UUID
	provider *fakeProvider
	accounts *fakeAccounts
	subs     *fakeSubs
	tiers    *TierService
	svc      *Service
}

func newBillingFixture(withProvider bool) billingFixture {
	f := billingFixture{orgID: uuid.New(), provider: &fakeProvider{portalURL: "https://billing.stripe.test/session"}, subs: &fakeSubs{}}
	f.accounts = newFakeAccounts(f.orgID)
	f.tiers = NewTierService(f.subs, 16, time.Minute, nil)
	var p Provider
	if withProvider {
		p = f.provider
	}
	f.svc = NewService(p, f.accounts, f.subs, f.tiers, ServiceConfig{
		PriceTiers: map[string]string{"price_starter": "starter", "price_pro": "pro"},
		ReturnURL:  "https://app.test/billing",
	}, nil)
	return f
}

func TestCreatePortalSession(t *testing.T) {
	f := newBillingFixture(true)
	ctx := context.Background()

	_, err := f.svc.CreatePortalSession(ctx, f.orgID)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
	assert.Equal(t, "organisation has no billing account", apperr.Message(err, ""))

	f.accounts.customers[f.orgID] = "cus_1"
	url, err := f.svc.CreatePortalSession(ctx, f.orgID)
	require.NoError(t, err)
	assert.Equal(t, "https://billing.stripe.test/session?customer=cus_1&return=https://app.test/billing", url)
}

func TestCreatePortalSession_StripeFailure(t *testing.T) {
	f := newBillingFixture(true)
	f.accounts.customers[f.orgID] = "cus_1"
	f.provider.portalErr = errors.New("stripe: 500")

	_, err := f.svc.CreatePortalSession(context.Background(), f.orgID)
	assert.Equal(t, apperr.KindCollaborator, apperr.KindOf(err))
}

func TestCreatePortalSession_Offline(t *testing.T) {
	f := newBillingFixture(false)
	_, err := f.svc.CreatePortalSession(context.Background(), f.orgID)
	assert.True(t, apperr.IsValidation(err))
}

func TestEnsureCustomer_CreatesOnce(t *testing.T) {
	f := newBillingFixture(true)
	ctx := context.Background()

	id, err := f.svc.EnsureCustomer(ctx, f.orgID)
	require.NoError(t, err)
	assert.Equal(t, "cus_new", id)
	id, err = f.svc.EnsureCustomer(ctx, f.orgID)
	require.NoError(t, err)
	assert.Equal(t, "cus_new", id)
	assert.Equal(t, 1, f.provider.customers)
	assert.Equal(t, "Harbour Strata", f.provider.lastCustReq)
}

func TestSyncSubscription_UpdatesTierAndCache(t *testing.T) {
	f := newBillingFixture(true)
	ctx := context.Background()
	f.accounts.customers[f.orgID] = "cus_1"

	tier, err := f.tiers.TierFor(ctx, f.orgID)
	require.NoError(t, err)
	require.Equal(t, TierFree, tier)

	f.provider.remote = &RemoteSubscription{ID: "sub_1", CustomerID: "cus_1", Status: "active", PriceID: "price_pro"}
	sub, err := f.svc.SyncSubscription(ctx, f.orgID)
	require.NoError(t, err)
	assert.Equal(t, "pro", sub.Tier)

	tier, err = f.tiers.TierFor(ctx, f.orgID)
	require.NoError(t, err)
	assert.Equal(t, TierPro, tier)
}

func TestSyncSubscription_UnknownPriceIsFree(t *testing.T) {
	f := newBillingFixture(true)
	f.accounts.customers[f.orgID] = "cus_1"
	f.provider.remote = &RemoteSubscription{ID: "sub_1", Status: "active", PriceID: "price_legacy"}

	sub, err := f.svc.SyncSubscription(context.Background(), f.orgID)
	require.NoError(t, err)
	assert.Equal(t, "free", sub.Tier)
}

func TestSyncAll(t *testing.T) {
	f := newBillingFixture(true)
	f.accounts.customers[f.orgID] = "cus_1"
	f.provider.remote = &RemoteSubscription{ID: "sub_1", Status: "trialing", PriceID: "price_starter"}

	synced, failed, err := f.svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, synced)
	assert.Equal(t, 0, failed)
	assert.Equal(t, "starter", f.subs.subs[f.orgID].Tier)
}

func TestHandleWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("subscription deleted downgrades to free", func(t *testing.T) {
		f := newBillingFixture(true)
		f.accounts.customers[f.orgID] = "cus_1"
		f.provider.event = &WebhookEvent{ID: "evt_1", Type: "customer.subscription.deleted",
			Subscription: &RemoteSubscription{ID: "sub_1", CustomerID: "cus_1", Status: "active", PriceID: "price_pro"}}

		_, err := f.svc.HandleWebhook(ctx, nil, "sig")
		require.NoError(t, err)
		assert.Equal(t, "canceled", f.subs.subs[f.orgID].Status)
		tier, err := f.tiers.TierFor(ctx, f.orgID)
		require.NoError(t, err)
		assert.Equal(t, TierFree, tier)
	})

	t.Run("late deletion of a replaced subscription keeps the current tier", func(t *testing.T) {
		f := newBillingFixture(true)
		f.accounts.customers[f.orgID] = "cus_1"
		current := "sub_new"
		f.subs.subs = map[uuid.UUID]*models.Subscription{
			f.orgID: {OrganizationID: f.orgID, StripeSubscriptionID: &current, Tier: "pro", Status: "active"},
		}
		f.provider.event = &WebhookEvent{ID: "evt_5", Type: "customer.subscription.deleted",
			Subscription: &RemoteSubscription{ID: "sub_old", CustomerID: "cus_1", Status: "active", PriceID: "price_starter"}}

		_, err := f.svc.HandleWebhook(ctx, nil, "sig")
		require.NoError(t, err)
		assert.Equal(t, "active", f.subs.subs[f.orgID].Status)
		assert.Equal(t, "sub_new", *f.subs.subs[f.orgID].StripeSubscriptionID)
		tier, err := f.tiers.TierFor(ctx, f.orgID)
		require.NoError(t, err)
		assert.Equal(t, TierPro, tier)
	})

	t.Run("deletion of the stored subscription downgrades", func(t *testing.T) {
		f := newBillingFixture(true)
		f.accounts.customers[f.orgID] = "cus_1"
		current := "sub_1"
		f.subs.subs = map[uuid.UUID]*models.Subscription{
			f.orgID: {OrganizationID: f.orgID, StripeSubscriptionID: &current, Tier: "pro", Status: "active"},
		}
		f.provider.event = &WebhookEvent{ID: "evt_6", Type: "customer.subscription.deleted",
			Subscription: &RemoteSubscription{ID: "sub_1", CustomerID: "cus_1", Status: "active", PriceID: "price_pro"}}

		_, err := f.svc.HandleWebhook(ctx, nil, "sig")
		require.NoError(t, err)
		assert.Equal(t, "canceled", f.subs.subs[f.orgID].Status)
	})

	t.Run("metadata links an unknown customer", func(t *testing.T) {
		f := newBillingFixture(true)
		f.provider.event = &WebhookEvent{ID: "evt_2", Type: "customer.subscription.created",
			Subscription: &RemoteSubscription{ID: "sub_2", CustomerID: "cus_9", Status: "active", PriceID: "price_starter", OrganizationID: f.orgID.String()}}

		_, err := f.svc.HandleWebhook(ctx, nil, "sig")
		require.NoError(t, err)
		assert.Equal(t, "cus_9", f.accounts.customers[f.orgID])
		assert.Equal(t, "starter", f.subs.subs[f.orgID].Tier)
	})

	t.Run("unknown customer is acknowledged", func(t *testing.T) {
		f := newBillingFixture(true)
		f.provider.event = &WebhookEvent{ID: "evt_3", Type: "customer.subscription.updated",
			Subscription: &RemoteSubscription{ID: "sub_3", CustomerID: "cus_x", Status: "active"}}

		_, err := f.svc.HandleWebhook(ctx, nil, "sig")
		require.NoError(t, err)
		assert.Empty(t, f.subs.subs)
	})

	t.Run("other events are ignored", func(t *testing.T) {
		f := newBillingFixture(true)
		f.provider.event = &WebhookEvent{ID: "evt_4", Type: "invoice.paid"}

		ev, err := f.svc.HandleWebhook(ctx, nil, "sig")
		require.NoError(t, err)
		assert.Equal(t, "invoice.paid", ev.Type)
	})
}

func TestWebhookHandler_Status(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name     string
		online   bool
		eventErr error
		status   int
	}{
		{"offline", false, nil, http.StatusServiceUnavailable},
		{"bad signature", true, ErrInvalidSignature, http.StatusBadRequest},
		{"accepted", true, nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBillingFixture(tt.online)
			f.provider.event = &WebhookEvent{ID: "evt", Type: "invoice.paid"}
			f.provider.eventErr = tt.eventErr
			h := NewHandler(f.svc, f.tiers, nil)

			r := gin.New()
			r.POST("/webhooks/stripe", h.Webhook)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`)))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRequireFeature(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newBillingFixture(true)
	f.subs.subs = map[uuid.UUID]*models.Subscription{f.orgID: {OrganizationID: f.orgID, Tier: "starter", Status: "active"}}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextOrganizationID, f.orgID)
		c.Next()
	})
	r.POST("/levy", RequireFeature(f.tiers, FeatureLevyCalculation), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/portal", RequireFeature(f.tiers, FeatureOwnerPortal), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/unknown", RequireFeature(f.tiers, "teleport"), func(c *gin.Context) { c.Status(http.StatusOK) })

	for path, want := range map[string]int{"/levy": http.StatusOK, "/portal": http.StatusForbidden, "/unknown": http.StatusForbidden} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, want, w.Code, path)
		if want == http.StatusForbidden {
			assert.Contains(t, w.Body.String(), `"code":"upgrade_required"`, path)
		}
	}
}
