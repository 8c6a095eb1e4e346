package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Subscription represents an account's current entitlement window.
// Invariant: at most one subscription with Active=true per account at
// any time. Activation and deactivation of prior rows happen in the
// same storage transaction.
type Subscription struct {
	ID                     uuid.UUID
	AccountID              uuid.UUID
	PlanType               PlanType
	Active                 bool
	Provider               Provider
	ProviderSubscriptionID string
	StartedAt              time.Time
	ExpiresAt              time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// ActivateSubscriptionParams contains settlement data for activating
// an entitlement.
type ActivateSubscriptionParams struct {
	AccountID              uuid.UUID
	PlanType               PlanType
	Provider               Provider
	ProviderSubscriptionID string
	ExpiresAt              time.Time
}

// SubscriptionStore persists entitlement state.
type SubscriptionStore interface {
	// ActivateSubscription deactivates all existing subscriptions for
	// the account and inserts a new active row, atomically. Safe under
	// concurrent calls for the same account.
	ActivateSubscription(ctx context.Context, params ActivateSubscriptionParams) (*Subscription, error)

	// GetActiveSubscription returns the account's active subscription,
	// or a domain error with ENOTFOUND when the account has none.
	GetActiveSubscription(ctx context.Context, accountID uuid.UUID) (*Subscription, error)

	// UpdateSubscriptionPeriod moves the expiry of the subscription with
	// the given provider subscription id (renewals and plan changes
	// reported by the provider).
	UpdateSubscriptionPeriod(ctx context.Context, providerSubscriptionID string, expiresAt time.Time) error

	// DeactivateByProviderSubscriptionID marks the subscription with the
	// given provider subscription id inactive (provider-side
	// cancellation). Deactivating an unknown id is not an error.
	DeactivateByProviderSubscriptionID(ctx context.Context, providerSubscriptionID string) error
}
