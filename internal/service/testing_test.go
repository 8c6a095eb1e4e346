package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/watchhub/payments/internal/domain"
	"github.com/watchhub/payments/internal/telemetry"
)

// Prometheus collectors register against the default registry, so the
// test binary shares one set.
var testMetrics = telemetry.NewBusinessMetrics("test")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePlanStore serves a fixed catalog.
type fakePlanStore struct {
	plans map[string]domain.Plan
}

func newFakePlanStore() *fakePlanStore {
	return &fakePlanStore{plans: map[string]domain.Plan{
		"plan-basic":    {ID: "plan-basic", Name: "WatchHub Basic", Type: domain.PlanBasic, PriceCents: 599, Currency: "usd", Active: true},
		"plan-standard": {ID: "plan-standard", Name: "WatchHub Standard", Type: domain.PlanStandard, PriceCents: 799, Currency: "usd", Active: true},
		"plan-premium":  {ID: "plan-premium", Name: "WatchHub Premium", Type: domain.PlanPremium, PriceCents: 999, Currency: "usd", Active: true},
		"plan-legacy":   {ID: "plan-legacy", Name: "WatchHub Legacy", Type: domain.PlanBasic, PriceCents: 399, Currency: "usd", Active: false},
	}}
}

func (s *fakePlanStore) GetPlan(_ context.Context, id string) (*domain.Plan, error) {
	p, ok := s.plans[id]
	if !ok {
		return nil, domain.NotFound("plan.get", "plan", id)
	}
	return &p, nil
}

func (s *fakePlanStore) ListPlans(_ context.Context) ([]domain.Plan, error) {
	var out []domain.Plan
	for _, p := range s.plans {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

// fakeAccountStore holds accounts in memory.
type fakeAccountStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*domain.Account
}

func newFakeAccountStore(accounts ...*domain.Account) *fakeAccountStore {
	s := &fakeAccountStore{accounts: make(map[uuid.UUID]*domain.Account)}
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	return s
}

func (s *fakeAccountStore) GetAccount(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, domain.NotFound("account.get", "account", id.String())
	}
	copied := *a
	return &copied, nil
}

func (s *fakeAccountStore) GetAccountByEmail(_ context.Context, email string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			copied := *a
			return &copied, nil
		}
	}
	return nil, domain.NotFound("account.get_by_email", "account", email)
}

func (s *fakeAccountStore) SetProviderCustomerID(_ context.Context, accountID uuid.UUID, provider domain.Provider, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return domain.NotFound("account.set_customer_id", "account", accountID.String())
	}
	switch provider {
	case domain.ProviderStripe:
		a.StripeCustomerID = customerID
	case domain.ProviderPayPal:
		a.PayPalPayerID = customerID
	}
	return nil
}

// fakeOrderStore holds orders in memory with the same terminal-status
// guard the real store enforces.
type fakeOrderStore struct {
	mu     sync.Mutex
	orders map[string]*domain.Order

	// completeErr, when set, is returned by the next MarkOrderCompleted
	// call and then cleared.
	completeErr error
}

func newFakeOrderStore(orders ...*domain.Order) *fakeOrderStore {
	s := &fakeOrderStore{orders: make(map[string]*domain.Order)}
	for _, o := range orders {
		if o.Status == "" {
			o.Status = domain.OrderPending
		}
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeOrderStore) CreateOrder(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[order.ID]; exists {
		return domain.Conflict("order.create", "order already exists")
	}
	order.Status = domain.OrderPending
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	copied := *order
	s.orders[order.ID] = &copied
	return nil
}

func (s *fakeOrderStore) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.NotFound("order.get", "order", id)
	}
	copied := *o
	return &copied, nil
}

func (s *fakeOrderStore) MarkOrderCompleted(_ context.Context, id string, payload json.RawMessage) error {
	s.mu.Lock()
	if err := s.completeErr; err != nil {
		s.completeErr = nil
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	return s.finalize(id, domain.OrderCompleted, payload)
}

func (s *fakeOrderStore) MarkOrderFailed(_ context.Context, id string, payload json.RawMessage) error {
	return s.finalize(id, domain.OrderFailed, payload)
}

func (s *fakeOrderStore) finalize(id string, status domain.OrderStatus, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.NotFound("order.finalize", "order", id)
	}
	if o.Status != domain.OrderPending {
		return domain.ErrOrderFinalized
	}
	o.Status = status
	if payload != nil {
		o.ProviderPayload = payload
	}
	o.UpdatedAt = time.Now()
	return nil
}

// fakeSubscriptionStore keeps at most one active subscription per
// account.
type fakeSubscriptionStore struct {
	mu   sync.Mutex
	subs []*domain.Subscription
}

func newFakeSubscriptionStore() *fakeSubscriptionStore {
	return &fakeSubscriptionStore{}
}

func (s *fakeSubscriptionStore) ActivateSubscription(_ context.Context, params domain.ActivateSubscriptionParams) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.AccountID == params.AccountID {
			sub.Active = false
		}
	}
	sub := &domain.Subscription{
		ID:                     uuid.New(),
		AccountID:              params.AccountID,
		PlanType:               params.PlanType,
		Active:                 true,
		Provider:               params.Provider,
		ProviderSubscriptionID: params.ProviderSubscriptionID,
		StartedAt:              time.Now(),
		ExpiresAt:              params.ExpiresAt,
	}
	s.subs = append(s.subs, sub)
	copied := *sub
	return &copied, nil
}

// allForAccount returns every row for the account, active or not.
func (s *fakeSubscriptionStore) allForAccount(accountID uuid.UUID) []*domain.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Subscription
	for _, sub := range s.subs {
		if sub.AccountID == accountID {
			copied := *sub
			out = append(out, &copied)
		}
	}
	return out
}

func (s *fakeSubscriptionStore) GetActiveSubscription(_ context.Context, accountID uuid.UUID) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.AccountID == accountID && sub.Active {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, domain.NotFound("subscription.get_active", "active subscription", accountID.String())
}

func (s *fakeSubscriptionStore) UpdateSubscriptionPeriod(_ context.Context, providerSubscriptionID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.ProviderSubscriptionID == providerSubscriptionID && sub.Active {
			sub.ExpiresAt = expiresAt
			return nil
		}
	}
	return domain.NotFound("subscription.update_period", "subscription", providerSubscriptionID)
}

func (s *fakeSubscriptionStore) DeactivateByProviderSubscriptionID(_ context.Context, providerSubscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.ProviderSubscriptionID == providerSubscriptionID {
			sub.Active = false
		}
	}
	return nil
}

// fakePaymentMethodStore enforces the duplicate-active constraint.
type fakePaymentMethodStore struct {
	mu      sync.Mutex
	methods map[uuid.UUID]*domain.PaymentMethod
}

func newFakePaymentMethodStore() *fakePaymentMethodStore {
	return &fakePaymentMethodStore{methods: make(map[uuid.UUID]*domain.PaymentMethod)}
}

func (s *fakePaymentMethodStore) CreatePaymentMethod(_ context.Context, params domain.UpsertPaymentMethodParams) (*domain.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hasActive := false
	for _, pm := range s.methods {
		if pm.AccountID != params.AccountID || !pm.Active {
			continue
		}
		hasActive = true
		if pm.Provider == params.Provider && pm.ExternalID == params.ExternalID {
			return nil, domain.Conflict("payment_method.create", "payment method already saved")
		}
	}
	pm := &domain.PaymentMethod{
		ID:         uuid.New(),
		AccountID:  params.AccountID,
		Provider:   params.Provider,
		ExternalID: params.ExternalID,
		Brand:      params.Brand,
		Last4:      params.Last4,
		Email:      params.Email,
		IsDefault:  !hasActive,
		Active:     true,
		CreatedAt:  time.Now(),
	}
	s.methods[pm.ID] = pm
	copied := *pm
	return &copied, nil
}

func (s *fakePaymentMethodStore) GetPaymentMethod(_ context.Context, id uuid.UUID) (*domain.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pm, ok := s.methods[id]
	if !ok {
		return nil, domain.NotFound("payment_method.get", "payment method", id.String())
	}
	copied := *pm
	return &copied, nil
}

func (s *fakePaymentMethodStore) ListPaymentMethods(_ context.Context, accountID uuid.UUID) ([]domain.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PaymentMethod
	for _, pm := range s.methods {
		if pm.AccountID == accountID && pm.Active {
			out = append(out, *pm)
		}
	}
	// default first
	for i, pm := range out {
		if pm.IsDefault && i != 0 {
			out[0], out[i] = out[i], out[0]
		}
	}
	return out, nil
}

func (s *fakePaymentMethodStore) DeactivatePaymentMethod(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pm, ok := s.methods[id]
	if !ok || !pm.Active {
		return domain.NotFound("payment_method.deactivate", "payment method", id.String())
	}
	pm.Active = false
	pm.IsDefault = false
	return nil
}

// fakeLedger records seen event ids.
type fakeLedger struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{seen: make(map[string]bool)}
}

func (l *fakeLedger) RecordWebhookEvent(_ context.Context, event domain.WebhookEvent) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := string(event.Provider) + "/" + event.EventID
	if l.seen[key] {
		return false, nil
	}
	l.seen[key] = true
	return true, nil
}

func (l *fakeLedger) ReleaseWebhookEvent(_ context.Context, provider domain.Provider, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.seen, string(provider)+"/"+eventID)
	return nil
}
