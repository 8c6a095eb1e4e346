package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchhub/payments/internal/billing"
	"github.com/watchhub/payments/internal/domain"
)

type captureFixture struct {
	provider *billing.MockProvider
	orders   *fakeOrderStore
	rec      *reconcilerFixture
	svc      CaptureService
}

func newCaptureFixture(accounts []*domain.Account, orders []*domain.Order) *captureFixture {
	provider := billing.NewMockProvider()
	provider.ProviderName = domain.ProviderPayPal

	rec := newReconcilerFixture(accounts, orders)
	svc := NewCaptureService(rec.orders, provider, rec.reconciler, testMetrics, testLogger())

	return &captureFixture{provider: provider, orders: rec.orders, rec: rec, svc: svc}
}

func TestCaptureOrder(t *testing.T) {
	accountID := uuid.New()
	account := &domain.Account{ID: accountID, Email: "viewer@example.com"}
	order := &domain.Order{
		ID:          "ORDER-1",
		Provider:    domain.ProviderPayPal,
		AccountID:   accountID,
		PlanID:      "plan-standard",
		PlanType:    domain.PlanStandard,
		AmountCents: 799,
		Currency:    "usd",
	}
	f := newCaptureFixture([]*domain.Account{account}, []*domain.Order{order})

	outcome, err := f.svc.CaptureOrder(context.Background(), "ORDER-1", accountID)
	require.NoError(t, err)

	assert.True(t, outcome.Success)
	assert.Equal(t, "COMPLETED", outcome.Status)

	stored, err := f.orders.GetOrder(context.Background(), "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, stored.Status)

	sub, err := f.rec.subscriptions.GetActiveSubscription(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanStandard, sub.PlanType)
}

func TestCaptureOrderUnknown(t *testing.T) {
	f := newCaptureFixture(nil, nil)

	_, err := f.svc.CaptureOrder(context.Background(), "ORDER-missing", uuid.Nil)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCaptureOrderWrongProvider(t *testing.T) {
	order := &domain.Order{ID: "cs_1", Provider: domain.ProviderStripe, PlanType: domain.PlanBasic}
	f := newCaptureFixture(nil, []*domain.Order{order})

	_, err := f.svc.CaptureOrder(context.Background(), "cs_1", uuid.Nil)
	assert.ErrorIs(t, err, ErrWrongOrderProvider)
}

func TestCaptureOrderOwnership(t *testing.T) {
	owner := uuid.New()
	other := uuid.New()
	order := &domain.Order{ID: "ORDER-1", Provider: domain.ProviderPayPal, AccountID: owner, PlanType: domain.PlanBasic}
	f := newCaptureFixture(nil, []*domain.Order{order})

	_, err := f.svc.CaptureOrder(context.Background(), "ORDER-1", other)
	assert.ErrorIs(t, err, ErrNotOrderOwner)
}

func TestCaptureOrderTwiceRejected(t *testing.T) {
	accountID := uuid.New()
	account := &domain.Account{ID: accountID, Email: "viewer@example.com"}
	order := &domain.Order{
		ID:        "ORDER-1",
		Provider:  domain.ProviderPayPal,
		AccountID: accountID,
		PlanType:  domain.PlanBasic,
	}
	f := newCaptureFixture([]*domain.Account{account}, []*domain.Order{order})

	first, err := f.svc.CaptureOrder(context.Background(), "ORDER-1", accountID)
	require.NoError(t, err)
	require.True(t, first.Success)

	// Second capture of a settled order is rejected without reaching
	// the provider, and no second subscription row appears.
	calls := len(f.provider.CallLog)
	_, err = f.svc.CaptureOrder(context.Background(), "ORDER-1", accountID)
	assert.ErrorIs(t, err, ErrPaymentNotCompleted)
	assert.Equal(t, calls, len(f.provider.CallLog))

	subs := f.rec.subscriptions.allForAccount(accountID)
	assert.Len(t, subs, 1)
}

func TestCaptureOrderAlreadyCapturedOnProviderSide(t *testing.T) {
	accountID := uuid.New()
	order := &domain.Order{ID: "ORDER-1", Provider: domain.ProviderPayPal, AccountID: accountID, PlanType: domain.PlanBasic}
	f := newCaptureFixture(nil, []*domain.Order{order})

	f.provider.CaptureOrderFunc = func(ctx context.Context, orderID string) (*billing.CaptureResult, error) {
		return &billing.CaptureResult{OrderID: orderID, Status: "ALREADY_CAPTURED"}, nil
	}

	_, err := f.svc.CaptureOrder(context.Background(), "ORDER-1", accountID)
	assert.ErrorIs(t, err, ErrPaymentNotCompleted)

	// Local state was not touched by this call.
	stored, err := f.orders.GetOrder(context.Background(), "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, stored.Status)
}

type failingReconciler struct {
	Reconciler
}

func (failingReconciler) HandleSettlement(context.Context, SettlementParams) (*domain.Subscription, error) {
	return nil, domain.Internal(nil, "reconcile.settle", "subscription activation failed")
}

func TestCaptureOrderSettlementFailureStillSucceeds(t *testing.T) {
	accountID := uuid.New()
	order := &domain.Order{ID: "ORDER-1", Provider: domain.ProviderPayPal, AccountID: accountID, PlanType: domain.PlanBasic}

	provider := billing.NewMockProvider()
	provider.ProviderName = domain.ProviderPayPal
	orders := newFakeOrderStore(order)
	svc := NewCaptureService(orders, provider, failingReconciler{}, testMetrics, testLogger())

	// The money moved, so the caller sees success with a warning rather
	// than an error that would invite a double charge.
	outcome, err := svc.CaptureOrder(context.Background(), "ORDER-1", accountID)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.NotEmpty(t, outcome.Warning)
}

func TestCaptureOrderDeclined(t *testing.T) {
	accountID := uuid.New()
	order := &domain.Order{ID: "ORDER-1", Provider: domain.ProviderPayPal, AccountID: accountID, PlanType: domain.PlanBasic}
	f := newCaptureFixture(nil, []*domain.Order{order})

	f.provider.CaptureOrderFunc = func(ctx context.Context, orderID string) (*billing.CaptureResult, error) {
		return nil, &billing.ProviderError{
			Provider:   "paypal",
			Code:       "INSTRUMENT_DECLINED",
			Message:    "The instrument presented was declined.",
			HTTPStatus: 422,
		}
	}

	_, err := f.svc.CaptureOrder(context.Background(), "ORDER-1", accountID)
	require.Error(t, err)
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))

	// The order stays pending: the buyer can pick another funding
	// instrument and retry the same order.
	stored, err := f.orders.GetOrder(context.Background(), "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, stored.Status)

	f.provider.CaptureOrderFunc = nil
	outcome, err := f.svc.CaptureOrder(context.Background(), "ORDER-1", accountID)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
}

func TestCaptureOrderNonCompletedStatus(t *testing.T) {
	accountID := uuid.New()
	account := &domain.Account{ID: accountID, Email: "viewer@example.com"}
	order := &domain.Order{ID: "ORDER-1", Provider: domain.ProviderPayPal, AccountID: accountID, PlanType: domain.PlanBasic}
	f := newCaptureFixture([]*domain.Account{account}, []*domain.Order{order})

	f.provider.CaptureOrderFunc = func(ctx context.Context, orderID string) (*billing.CaptureResult, error) {
		return &billing.CaptureResult{
			OrderID: orderID,
			Status:  "PENDING",
			Raw:     json.RawMessage(`{"status":"PENDING"}`),
		}, nil
	}

	_, err := f.svc.CaptureOrder(context.Background(), "ORDER-1", accountID)
	assert.ErrorIs(t, err, ErrPaymentNotCompleted)

	// No side effects: the order stays pending and retryable.
	stored, err := f.orders.GetOrder(context.Background(), "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, stored.Status)

	// Once the provider-side payment completes, the retry settles.
	f.provider.CaptureOrderFunc = nil
	outcome, err := f.svc.CaptureOrder(context.Background(), "ORDER-1", accountID)
	require.NoError(t, err)
	assert.True(t, outcome.Success)

	stored, err = f.orders.GetOrder(context.Background(), "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, stored.Status)
}
