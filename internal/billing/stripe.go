package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/watchhub/payments/internal/domain"
)

// StripeConfig contains configuration for the Stripe provider.
type StripeConfig struct {
	// SecretKey is the Stripe secret key (sk_test_... or sk_live_...).
	SecretKey string

	// WebhookSecret is the webhook signing secret (whsec_...), used to
	// verify webhook signatures from Stripe.
	WebhookSecret string
}

// Validate checks that required configuration is present.
func (c *StripeConfig) Validate() error {
	if c.SecretKey == "" {
		return errors.New("stripe: secret key is required")
	}
	if c.WebhookSecret == "" {
		return errors.New("stripe: webhook secret is required")
	}
	return nil
}

// IsTestMode returns true if using test mode API keys.
func (c *StripeConfig) IsTestMode() bool {
	return len(c.SecretKey) > 7 && c.SecretKey[:8] == "sk_test_"
}

// StripeProvider implements Provider using the Stripe API.
// The client is constructed once and reused; it is safe for concurrent
// use per the SDK's contract.
type StripeProvider struct {
	client *stripe.Client
	config StripeConfig
}

// Compile-time check.
var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider creates a new Stripe billing provider.
// Fails fast when required secrets are missing so a misconfigured
// deployment is caught at startup rather than mid-checkout.
func NewStripeProvider(config StripeConfig) (*StripeProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &StripeProvider{
		client: stripe.NewClient(config.SecretKey, nil),
		config: config,
	}, nil
}

// Name identifies the provider.
func (s *StripeProvider) Name() domain.Provider {
	return domain.ProviderStripe
}

// CreateCustomer creates a Stripe customer.
func (s *StripeProvider) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	createParams := &stripe.CustomerCreateParams{
		Email:    stripe.String(params.Email),
		Metadata: params.Metadata,
	}
	if params.Name != "" {
		createParams.Name = stripe.String(params.Name)
	}

	customer, err := s.client.V1Customers.Create(ctx, createParams)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	return &Customer{
		ID:        customer.ID,
		Email:     customer.Email,
		Name:      customer.Name,
		CreatedAt: time.Unix(customer.Created, 0).UTC(),
	}, nil
}

// GetCustomer retrieves a Stripe customer.
// A deleted or unknown customer returns ErrCustomerNotFound so the
// resolver can recreate it.
func (s *StripeProvider) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	customer, err := s.client.V1Customers.Retrieve(ctx, customerID, nil)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return nil, ErrCustomerNotFound
		}
		return nil, wrapStripeError(err)
	}

	if customer.Deleted {
		return nil, ErrCustomerNotFound
	}

	return &Customer{
		ID:        customer.ID,
		Email:     customer.Email,
		Name:      customer.Name,
		CreatedAt: time.Unix(customer.Created, 0).UTC(),
	}, nil
}

// CreateCheckout creates a Stripe Checkout session in subscription mode
// with a single recurring monthly line item built from the plan
// selection. Plan metadata rides on the session so the later
// checkout.session.completed event is self-describing.
func (s *StripeProvider) CreateCheckout(ctx context.Context, params CreateCheckoutParams) (*Checkout, error) {
	metadata := map[string]string{
		"planId":   params.PlanID,
		"planName": params.PlanName,
		"planType": string(params.PlanType),
	}
	if params.AccountID != "" {
		metadata["accountId"] = params.AccountID
	}

	sessionParams := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency: stripe.String(params.Currency),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String(params.PlanName),
					},
					UnitAmount: stripe.Int64(params.UnitAmountCents),
					Recurring: &stripe.CheckoutSessionCreateLineItemPriceDataRecurringParams{
						Interval: stripe.String("month"),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		Metadata:   metadata,
		SubscriptionData: &stripe.CheckoutSessionCreateSubscriptionDataParams{
			Metadata: metadata,
		},
	}

	switch {
	case params.CustomerID != "":
		sessionParams.Customer = stripe.String(params.CustomerID)
	case params.CustomerEmail != "":
		sessionParams.CustomerEmail = stripe.String(params.CustomerEmail)
	}

	session, err := s.client.V1CheckoutSessions.Create(ctx, sessionParams)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	return &Checkout{
		ID:  session.ID,
		URL: session.URL,
		Raw: session.LastResponse.RawJSON,
	}, nil
}

// CaptureOrder is not part of the Stripe flow: settlement arrives
// asynchronously via webhook.
func (s *StripeProvider) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	return nil, ErrNotSupported
}

// GetSubscription retrieves a Stripe subscription and extracts the
// current billing-period end from its first item.
func (s *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	sub, err := s.client.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil, &ProviderError{
			Provider: "stripe",
			Message:  fmt.Sprintf("subscription %s has no items", subscriptionID),
		}
	}

	return &Subscription{
		ID:     sub.ID,
		Status: string(sub.Status),
		CustomerID: func() string {
			if sub.Customer != nil {
				return sub.Customer.ID
			}
			return ""
		}(),
		CurrentPeriodEnd: time.Unix(sub.Items.Data[0].CurrentPeriodEnd, 0).UTC(),
		Metadata:         sub.Metadata,
	}, nil
}

// VerifyWebhookSignature verifies a Stripe webhook signature against
// the configured signing secret.
func (s *StripeProvider) VerifyWebhookSignature(payload []byte, signature string) error {
	_, err := webhook.ConstructEventWithOptions(payload, signature, s.config.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWebhookSignature, err)
	}
	return nil
}

// wrapStripeError converts a Stripe SDK error into a ProviderError,
// mapping transport failures to ErrProviderUnavailable.
func wrapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return &ProviderError{
			Provider:      "stripe",
			Message:       stripeErr.Msg,
			Code:          string(stripeErr.Code),
			HTTPStatus:    stripeErr.HTTPStatusCode,
			OriginalError: err,
		}
	}

	// Non-API errors are transport-level: timeouts, DNS, connection
	// resets.
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
