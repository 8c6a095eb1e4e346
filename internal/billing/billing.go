package billing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/watchhub/payments/internal/domain"
)

// Provider defines the interface for payment processing.
// Implementations: Stripe (hosted checkout + webhook settlement) and
// PayPal (order create + synchronous capture). Methods that make no
// sense for a given provider return ErrNotSupported.
type Provider interface {
	// Name identifies the provider for persistence and routing.
	Name() domain.Provider

	// CreateCustomer creates a customer record at the provider so that
	// payment methods can be reused for repeat billing.
	CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error)

	// GetCustomer retrieves an existing customer.
	// Returns ErrCustomerNotFound when the reference is stale (deleted
	// or unknown at the provider) so callers can self-heal.
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)

	// CreateCheckout creates a provider-hosted checkout resource for a
	// single-line-item recurring monthly charge. The params metadata is
	// attached provider-side so later settlement events are
	// self-describing.
	CreateCheckout(ctx context.Context, params CreateCheckoutParams) (*Checkout, error)

	// CaptureOrder finalizes a previously approved order (PayPal).
	// The returned result's Status must be checked by the caller;
	// anything other than a completed status means the payment did not
	// settle and no entitlement may be granted.
	CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error)

	// GetSubscription retrieves a provider-side subscription, used to
	// source the billing-period end for entitlement windows.
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	// VerifyWebhookSignature verifies that a webhook payload is
	// authentic. Returns ErrInvalidWebhookSignature when verification
	// fails; callers must not process the payload in that case.
	VerifyWebhookSignature(payload []byte, signature string) error
}

// CreateCustomerParams contains parameters for creating a customer.
type CreateCustomerParams struct {
	Email    string
	Name     string
	Metadata map[string]string
}

// Customer represents a billing customer at the provider.
type Customer struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
}

// CreateCheckoutParams contains parameters for creating a checkout
// resource. All plan fields are required; the service layer validates
// before calling.
type CreateCheckoutParams struct {
	// PlanID, PlanName and PlanType tag the checkout so settlement
	// events round-trip the plan selection without a side-channel
	// lookup.
	PlanID   string
	PlanName string
	PlanType domain.PlanType

	// UnitAmountCents is the monthly charge in the smallest currency
	// unit.
	UnitAmountCents int64
	Currency        string

	// CustomerID links the checkout to a resolved provider customer.
	// Empty for guest checkout.
	CustomerID string

	// CustomerEmail prefills the payment page for guests without a
	// resolved customer.
	CustomerEmail string

	// AccountID tags the checkout with the internal account, when
	// present.
	AccountID string

	SuccessURL string
	CancelURL  string
}

// Checkout is a provider-hosted checkout resource.
type Checkout struct {
	// ID is the provider-assigned identifier (Stripe session id,
	// PayPal order id).
	ID string

	// URL is where the user completes payment (Stripe hosted page or
	// PayPal approval link).
	URL string

	// Raw is the provider response, kept for the order audit record.
	Raw json.RawMessage
}

// CaptureResult is the outcome of finalizing a payment.
type CaptureResult struct {
	OrderID string

	// Status is the provider's settlement status. Completed reports
	// whether it denotes a settled payment.
	Status string

	PayerID     string
	PayerEmail  string
	AmountCents int64
	Currency    string

	Raw json.RawMessage
}

// Completed reports whether the capture settled the payment.
func (r *CaptureResult) Completed() bool {
	return r.Status == "COMPLETED"
}

// Subscription is a provider-side recurring subscription.
type Subscription struct {
	ID               string
	CustomerID       string
	Status           string
	CurrentPeriodEnd time.Time
	Metadata         map[string]string
}
