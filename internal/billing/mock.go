package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/watchhub/payments/internal/domain"
)

// MockProvider is a mock billing provider for testing.
// Simulates successful checkout and capture flows without calling a
// real payment API.
type MockProvider struct {
	// ProviderName is returned by Name. Defaults to stripe.
	ProviderName domain.Provider

	// CreateCustomerFunc allows customizing customer creation behavior
	CreateCustomerFunc func(ctx context.Context, params CreateCustomerParams) (*Customer, error)

	// GetCustomerFunc allows customizing customer retrieval behavior
	GetCustomerFunc func(ctx context.Context, customerID string) (*Customer, error)

	// CreateCheckoutFunc allows customizing checkout creation behavior
	CreateCheckoutFunc func(ctx context.Context, params CreateCheckoutParams) (*Checkout, error)

	// CaptureOrderFunc allows customizing order capture behavior
	CaptureOrderFunc func(ctx context.Context, orderID string) (*CaptureResult, error)

	// GetSubscriptionFunc allows customizing subscription retrieval behavior
	GetSubscriptionFunc func(ctx context.Context, subscriptionID string) (*Subscription, error)

	// VerifyWebhookSignatureFunc allows customizing webhook verification behavior
	VerifyWebhookSignatureFunc func(payload []byte, signature string) error

	// Customers stores created customers for retrieval
	Customers map[string]*Customer

	// Checkouts stores created checkouts for retrieval
	Checkouts map[string]*Checkout

	// Subscriptions stores subscriptions returned by GetSubscription
	Subscriptions map[string]*Subscription

	// CallLog tracks method calls for test assertions
	CallLog []string
}

var _ Provider = (*MockProvider)(nil)

// NewMockProvider creates a new mock billing provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		ProviderName:  domain.ProviderStripe,
		Customers:     make(map[string]*Customer),
		Checkouts:     make(map[string]*Checkout),
		Subscriptions: make(map[string]*Subscription),
		CallLog:       []string{},
	}
}

// Name identifies the mock provider.
func (m *MockProvider) Name() domain.Provider {
	return m.ProviderName
}

// CreateCustomer creates a mock customer.
func (m *MockProvider) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("CreateCustomer(%s)", params.Email))

	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(ctx, params)
	}

	customer := &Customer{
		ID:        "cus_" + uuid.New().String()[:8],
		Email:     params.Email,
		Name:      params.Name,
		CreatedAt: time.Now(),
	}

	m.Customers[customer.ID] = customer
	return customer, nil
}

// GetCustomer retrieves a mock customer.
func (m *MockProvider) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("GetCustomer(%s)", customerID))

	if m.GetCustomerFunc != nil {
		return m.GetCustomerFunc(ctx, customerID)
	}

	customer, exists := m.Customers[customerID]
	if !exists {
		return nil, ErrCustomerNotFound
	}
	return customer, nil
}

// CreateCheckout creates a mock checkout session.
func (m *MockProvider) CreateCheckout(ctx context.Context, params CreateCheckoutParams) (*Checkout, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("CreateCheckout(%s, %d, %s)", params.PlanID, params.UnitAmountCents, params.Currency))

	if m.CreateCheckoutFunc != nil {
		return m.CreateCheckoutFunc(ctx, params)
	}

	checkout := &Checkout{
		ID:  "cs_" + uuid.New().String()[:8],
		URL: "https://checkout.example.com/" + uuid.New().String()[:8],
	}

	m.Checkouts[checkout.ID] = checkout
	return checkout, nil
}

// CaptureOrder captures a mock order.
func (m *MockProvider) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("CaptureOrder(%s)", orderID))

	if m.CaptureOrderFunc != nil {
		return m.CaptureOrderFunc(ctx, orderID)
	}

	// Default mock behavior: capture completes
	return &CaptureResult{
		OrderID:     orderID,
		Status:      "COMPLETED",
		PayerID:     "payer_" + uuid.New().String()[:8],
		PayerEmail:  "payer@example.com",
		AmountCents: 599,
		Currency:    "usd",
	}, nil
}

// GetSubscription retrieves a mock subscription.
func (m *MockProvider) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("GetSubscription(%s)", subscriptionID))

	if m.GetSubscriptionFunc != nil {
		return m.GetSubscriptionFunc(ctx, subscriptionID)
	}

	sub, exists := m.Subscriptions[subscriptionID]
	if !exists {
		return &Subscription{
			ID:               subscriptionID,
			Status:           "active",
			CurrentPeriodEnd: time.Now().Add(30 * 24 * time.Hour),
		}, nil
	}
	return sub, nil
}

// VerifyWebhookSignature verifies a mock webhook signature.
func (m *MockProvider) VerifyWebhookSignature(payload []byte, signature string) error {
	m.CallLog = append(m.CallLog, "VerifyWebhookSignature")

	if m.VerifyWebhookSignatureFunc != nil {
		return m.VerifyWebhookSignatureFunc(payload, signature)
	}

	// Default mock behavior: always verify successfully
	return nil
}
