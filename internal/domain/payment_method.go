package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PaymentMethod is a saved billing instrument reference (card token or
// PayPal payer id) associated with an account. Rows are soft-deleted to
// preserve audit history.
type PaymentMethod struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Provider  Provider
	// ExternalID is the provider-specific reference: a Stripe payment
	// method / card fingerprint, or a PayPal payer id.
	ExternalID string
	Brand      string
	Last4      string
	Email      string
	IsDefault  bool
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UpsertPaymentMethodParams contains the fields needed to save a
// billing reference.
type UpsertPaymentMethodParams struct {
	AccountID  uuid.UUID
	Provider   Provider
	ExternalID string
	Brand      string
	Last4      string
	Email      string
}

// PaymentMethodStore persists reusable billing references.
type PaymentMethodStore interface {
	// CreatePaymentMethod inserts a new payment method. Returns a domain
	// error with ECONFLICT when the same external id is already active
	// for the account. The first active method for an account is marked
	// default.
	CreatePaymentMethod(ctx context.Context, params UpsertPaymentMethodParams) (*PaymentMethod, error)

	// GetPaymentMethod retrieves a payment method by ID.
	GetPaymentMethod(ctx context.Context, id uuid.UUID) (*PaymentMethod, error)

	// ListPaymentMethods returns the account's active payment methods,
	// default first.
	ListPaymentMethods(ctx context.Context, accountID uuid.UUID) ([]PaymentMethod, error)

	// DeactivatePaymentMethod flips the active flag off, retaining the
	// row for audit history.
	DeactivatePaymentMethod(ctx context.Context, id uuid.UUID) error
}
