package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchhub/payments/internal/domain"
	"github.com/watchhub/payments/internal/events"
)

// recordingPublisher captures emitted events for assertions.
type recordingPublisher struct {
	settled   []events.PaymentSettled
	activated []events.SubscriptionActivated
}

func (p *recordingPublisher) PublishPaymentSettled(e events.PaymentSettled) error {
	p.settled = append(p.settled, e)
	return nil
}

func (p *recordingPublisher) PublishSubscriptionActivated(e events.SubscriptionActivated) error {
	p.activated = append(p.activated, e)
	return nil
}

func (p *recordingPublisher) Close() {}

type reconcilerFixture struct {
	orders         *fakeOrderStore
	accounts       *fakeAccountStore
	subscriptions  *fakeSubscriptionStore
	paymentMethods *fakePaymentMethodStore
	ledger         *fakeLedger
	publisher      *recordingPublisher
	reconciler     Reconciler
}

func newReconcilerFixture(accounts []*domain.Account, orders []*domain.Order) *reconcilerFixture {
	f := &reconcilerFixture{
		orders:         newFakeOrderStore(orders...),
		accounts:       newFakeAccountStore(accounts...),
		subscriptions:  newFakeSubscriptionStore(),
		paymentMethods: newFakePaymentMethodStore(),
		ledger:         newFakeLedger(),
		publisher:      &recordingPublisher{},
	}
	f.reconciler = NewReconciler(f.orders, f.accounts, f.subscriptions,
		f.paymentMethods, f.ledger, f.publisher, testMetrics, testLogger())
	return f
}

func TestHandleSettlementActivatesSubscription(t *testing.T) {
	accountID := uuid.New()
	account := &domain.Account{ID: accountID, Email: "viewer@example.com", Role: domain.RoleUser}
	order := &domain.Order{
		ID:          "cs_test_1",
		Provider:    domain.ProviderStripe,
		AccountID:   accountID,
		PlanID:      "plan-premium",
		PlanType:    domain.PlanPremium,
		AmountCents: 999,
		Currency:    "usd",
	}
	f := newReconcilerFixture([]*domain.Account{account}, []*domain.Order{order})

	expires := time.Now().Add(30 * 24 * time.Hour).UTC()
	sub, err := f.reconciler.HandleSettlement(context.Background(), SettlementParams{
		Provider:               domain.ProviderStripe,
		OrderID:                "cs_test_1",
		EventID:                "evt_1",
		EventType:              "checkout.session.completed",
		ProviderSubscriptionID: "sub_123",
		ProviderCustomerID:     "cus_123",
		ExpiresAt:              expires,
		Payload:                json.RawMessage(`{"id":"cs_test_1"}`),
	})
	require.NoError(t, err)
	require.NotNil(t, sub)

	assert.Equal(t, accountID, sub.AccountID)
	assert.Equal(t, domain.PlanPremium, sub.PlanType)
	assert.True(t, sub.Active)
	assert.Equal(t, "sub_123", sub.ProviderSubscriptionID)
	assert.WithinDuration(t, expires, sub.ExpiresAt, time.Second)

	stored, err := f.orders.GetOrder(context.Background(), "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, stored.Status)
	assert.JSONEq(t, `{"id":"cs_test_1"}`, string(stored.ProviderPayload))

	require.Len(t, f.publisher.settled, 1)
	assert.Equal(t, int64(999), f.publisher.settled[0].AmountCents)
	require.Len(t, f.publisher.activated, 1)
	assert.Equal(t, accountID.String(), f.publisher.activated[0].AccountID)
}

func TestHandleSettlementReplayedEventIsSkipped(t *testing.T) {
	accountID := uuid.New()
	account := &domain.Account{ID: accountID, Email: "viewer@example.com"}
	order := &domain.Order{
		ID:        "cs_test_1",
		Provider:  domain.ProviderStripe,
		AccountID: accountID,
		PlanType:  domain.PlanBasic,
	}
	f := newReconcilerFixture([]*domain.Account{account}, []*domain.Order{order})

	params := SettlementParams{
		Provider:  domain.ProviderStripe,
		OrderID:   "cs_test_1",
		EventID:   "evt_1",
		EventType: "checkout.session.completed",
	}

	sub, err := f.reconciler.HandleSettlement(context.Background(), params)
	require.NoError(t, err)
	require.NotNil(t, sub)

	replay, err := f.reconciler.HandleSettlement(context.Background(), params)
	require.NoError(t, err)
	assert.Nil(t, replay)

	assert.Len(t, f.publisher.settled, 1, "replay must not re-emit events")
	assert.Len(t, f.publisher.activated, 1)
}

func TestHandleSettlementFailureReleasesEvent(t *testing.T) {
	accountID := uuid.New()
	account := &domain.Account{ID: accountID, Email: "viewer@example.com"}
	order := &domain.Order{
		ID:        "cs_test_1",
		Provider:  domain.ProviderStripe,
		AccountID: accountID,
		PlanType:  domain.PlanBasic,
	}
	f := newReconcilerFixture([]*domain.Account{account}, []*domain.Order{order})

	params := SettlementParams{
		Provider:  domain.ProviderStripe,
		OrderID:   "cs_test_1",
		EventID:   "evt_1",
		EventType: "checkout.session.completed",
	}

	// First delivery fails after the ledger insert.
	f.orders.completeErr = domain.Internal(nil, "order.complete", "database failure")
	_, err := f.reconciler.HandleSettlement(context.Background(), params)
	require.Error(t, err)

	// The redelivery must not be deduped away: the failed attempt was
	// backed out of the ledger and the settlement completes now.
	sub, err := f.reconciler.HandleSettlement(context.Background(), params)
	require.NoError(t, err)
	require.NotNil(t, sub)

	stored, err := f.orders.GetOrder(context.Background(), "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, stored.Status)
}

func TestHandleSettlementFinalizedOrderIsSkipped(t *testing.T) {
	accountID := uuid.New()
	account := &domain.Account{ID: accountID, Email: "viewer@example.com"}
	order := &domain.Order{
		ID:        "ORDER-1",
		Provider:  domain.ProviderPayPal,
		AccountID: accountID,
		PlanType:  domain.PlanStandard,
		Status:    domain.OrderCompleted,
	}
	f := newReconcilerFixture([]*domain.Account{account}, []*domain.Order{order})

	// Capture path carries no event id, dedupe rides on order status.
	sub, err := f.reconciler.HandleSettlement(context.Background(), SettlementParams{
		Provider: domain.ProviderPayPal,
		OrderID:  "ORDER-1",
	})
	require.NoError(t, err)
	assert.Nil(t, sub)
	assert.Empty(t, f.publisher.settled)
}

func TestHandleSettlementResolvesAccountByEmail(t *testing.T) {
	accountID := uuid.New()
	account := &domain.Account{ID: accountID, Email: "guest@example.com"}
	order := &domain.Order{
		ID:       "cs_guest_1",
		Provider: domain.ProviderStripe,
		PlanType: domain.PlanBasic,
	}
	f := newReconcilerFixture([]*domain.Account{account}, []*domain.Order{order})

	sub, err := f.reconciler.HandleSettlement(context.Background(), SettlementParams{
		Provider:      domain.ProviderStripe,
		OrderID:       "cs_guest_1",
		EventID:       "evt_guest",
		EventType:     "checkout.session.completed",
		CustomerEmail: "guest@example.com",
	})
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, accountID, sub.AccountID)
}

func TestHandleSettlementGuestWithoutAccountSkipsActivation(t *testing.T) {
	order := &domain.Order{
		ID:       "cs_guest_2",
		Provider: domain.ProviderStripe,
		PlanType: domain.PlanBasic,
	}
	f := newReconcilerFixture(nil, []*domain.Order{order})

	sub, err := f.reconciler.HandleSettlement(context.Background(), SettlementParams{
		Provider:      domain.ProviderStripe,
		OrderID:       "cs_guest_2",
		EventID:       "evt_guest_2",
		CustomerEmail: "unknown@example.com",
	})
	require.NoError(t, err)
	assert.Nil(t, sub)

	// The order still settles and the event still fires.
	stored, err := f.orders.GetOrder(context.Background(), "cs_guest_2")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, stored.Status)
	assert.Len(t, f.publisher.settled, 1)
	assert.Empty(t, f.publisher.activated)
}

func TestHandleSettlementReplacesPriorSubscription(t *testing.T) {
	accountID := uuid.New()
	account := &domain.Account{ID: accountID, Email: "viewer@example.com"}
	orders := []*domain.Order{
		{ID: "cs_1", Provider: domain.ProviderStripe, AccountID: accountID, PlanType: domain.PlanBasic},
		{ID: "cs_2", Provider: domain.ProviderStripe, AccountID: accountID, PlanType: domain.PlanPremium},
	}
	f := newReconcilerFixture([]*domain.Account{account}, orders)

	_, err := f.reconciler.HandleSettlement(context.Background(), SettlementParams{
		Provider: domain.ProviderStripe, OrderID: "cs_1", EventID: "evt_a",
	})
	require.NoError(t, err)

	_, err = f.reconciler.HandleSettlement(context.Background(), SettlementParams{
		Provider: domain.ProviderStripe, OrderID: "cs_2", EventID: "evt_b",
	})
	require.NoError(t, err)

	active, err := f.subscriptions.GetActiveSubscription(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanPremium, active.PlanType)

	activeCount := 0
	for _, s := range f.subscriptions.subs {
		if s.Active {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount, "at most one active subscription per account")
}

func TestHandleSettlementSavesPayPalBillingReference(t *testing.T) {
	accountID := uuid.New()
	account := &domain.Account{ID: accountID, Email: "viewer@example.com"}
	order := &domain.Order{
		ID:        "ORDER-9",
		Provider:  domain.ProviderPayPal,
		AccountID: accountID,
		PlanType:  domain.PlanStandard,
	}
	f := newReconcilerFixture([]*domain.Account{account}, []*domain.Order{order})

	_, err := f.reconciler.HandleSettlement(context.Background(), SettlementParams{
		Provider:   domain.ProviderPayPal,
		OrderID:    "ORDER-9",
		AccountID:  accountID,
		PayerID:    "PAYER123",
		PayerEmail: "viewer@paypal.example.com",
	})
	require.NoError(t, err)

	stored, err := f.accounts.GetAccount(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, "PAYER123", stored.PayPalPayerID)

	methods, err := f.paymentMethods.ListPaymentMethods(context.Background(), accountID)
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.Equal(t, "PAYER123", methods[0].ExternalID)
	assert.True(t, methods[0].IsDefault)
}

func TestHandleSubscriptionRenewal(t *testing.T) {
	accountID := uuid.New()
	f := newReconcilerFixture(nil, nil)

	_, err := f.subscriptions.ActivateSubscription(context.Background(), domain.ActivateSubscriptionParams{
		AccountID:              accountID,
		PlanType:               domain.PlanPremium,
		Provider:               domain.ProviderStripe,
		ProviderSubscriptionID: "sub_123",
		ExpiresAt:              time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	renewed := time.Now().Add(60 * 24 * time.Hour).UTC()
	require.NoError(t, f.reconciler.HandleSubscriptionRenewal(context.Background(), "sub_123", renewed))

	active, err := f.subscriptions.GetActiveSubscription(context.Background(), accountID)
	require.NoError(t, err)
	assert.WithinDuration(t, renewed, active.ExpiresAt, time.Second)

	// Unknown subscriptions are acknowledged, not errored.
	assert.NoError(t, f.reconciler.HandleSubscriptionRenewal(context.Background(), "sub_unknown", renewed))
}

func TestHandleSubscriptionCanceled(t *testing.T) {
	accountID := uuid.New()
	f := newReconcilerFixture(nil, nil)

	_, err := f.subscriptions.ActivateSubscription(context.Background(), domain.ActivateSubscriptionParams{
		AccountID:              accountID,
		PlanType:               domain.PlanBasic,
		Provider:               domain.ProviderStripe,
		ProviderSubscriptionID: "sub_c",
		ExpiresAt:              time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, f.reconciler.HandleSubscriptionCanceled(context.Background(), domain.ProviderStripe, "sub_c"))

	_, err = f.subscriptions.GetActiveSubscription(context.Background(), accountID)
	assert.True(t, domain.IsCode(err, domain.ENOTFOUND))
}

func TestHandleSettlementMapsPlanTypeFromName(t *testing.T) {
	accountID := uuid.New()
	account := &domain.Account{ID: accountID, Email: "viewer@example.com"}
	// Order row written without a recognized plan type; the display
	// name decides the tier.
	order := &domain.Order{
		ID:        "cs_name_1",
		Provider:  domain.ProviderStripe,
		AccountID: accountID,
		PlanName:  "Premium Plan",
	}
	f := newReconcilerFixture([]*domain.Account{account}, []*domain.Order{order})

	_, err := f.reconciler.HandleSettlement(context.Background(), SettlementParams{
		Provider: domain.ProviderStripe,
		OrderID:  "cs_name_1",
	})
	require.NoError(t, err)

	sub, err := f.subscriptions.GetActiveSubscription(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanPremium, sub.PlanType)
}

func TestHandleCheckoutExpired(t *testing.T) {
	order := &domain.Order{ID: "cs_exp_1", Provider: domain.ProviderStripe, PlanType: domain.PlanBasic}
	f := newReconcilerFixture(nil, []*domain.Order{order})

	require.NoError(t, f.reconciler.HandleCheckoutExpired(context.Background(), domain.ProviderStripe, "cs_exp_1"))

	stored, err := f.orders.GetOrder(context.Background(), "cs_exp_1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFailed, stored.Status)

	// Redelivered expiry for the finalized order is acknowledged.
	require.NoError(t, f.reconciler.HandleCheckoutExpired(context.Background(), domain.ProviderStripe, "cs_exp_1"))
}

func TestHandleCheckoutExpiredUnknownOrder(t *testing.T) {
	f := newReconcilerFixture(nil, nil)

	require.NoError(t, f.reconciler.HandleCheckoutExpired(context.Background(), domain.ProviderStripe, "cs_missing"))
}
