package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSupported is returned when a provider does not implement an
	// operation (e.g. synchronous capture on Stripe, customer records
	// on PayPal).
	ErrNotSupported = errors.New("billing: operation not supported by provider")

	// ErrCustomerNotFound is returned when a stored customer reference
	// is stale: deleted or unknown at the provider.
	ErrCustomerNotFound = errors.New("billing: customer not found at provider")

	// ErrInvalidWebhookSignature is returned when webhook signature
	// verification fails.
	ErrInvalidWebhookSignature = errors.New("billing: invalid webhook signature")

	// ErrProviderUnavailable is returned when the provider API is
	// unreachable or timed out.
	ErrProviderUnavailable = errors.New("billing: provider unavailable")
)

// ProviderError wraps a provider API error with additional context.
type ProviderError struct {
	Provider      string // "stripe" or "paypal"
	Message       string // Human-readable error message
	Code          string // Provider error code (e.g. "card_declined", "ORDER_ALREADY_CAPTURED")
	HTTPStatus    int    // HTTP status code from the provider
	OriginalError error  // Original error from the SDK or HTTP client
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Provider, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.OriginalError
}

// IsTemporary returns true if the error is likely transient and the
// whole operation may be resubmitted by the caller.
func (e *ProviderError) IsTemporary() bool {
	return e.HTTPStatus == 429 || e.HTTPStatus >= 500
}
