package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AccountRole determines what an account is allowed to do.
type AccountRole string

const (
	RoleUser  AccountRole = "user"
	RoleAdmin AccountRole = "admin"
)

// Account is the internal user identity record.
// Provider customer reference fields are set lazily on first purchase
// and overwritten when a stored reference turns out to be stale.
type Account struct {
	ID               uuid.UUID
	Email            string
	Role             AccountRole
	StripeCustomerID string
	PayPalPayerID    string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ProviderCustomerID returns the stored customer reference for the
// given provider, or "" if none has been persisted yet.
func (a *Account) ProviderCustomerID(provider Provider) string {
	switch provider {
	case ProviderStripe:
		return a.StripeCustomerID
	case ProviderPayPal:
		return a.PayPalPayerID
	}
	return ""
}

// AccountStore persists accounts and their provider customer references.
type AccountStore interface {
	// GetAccount retrieves an account by ID.
	// Returns a domain error with ENOTFOUND if the account does not exist.
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)

	// GetAccountByEmail retrieves an account by email.
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)

	// SetProviderCustomerID persists a provider customer reference on the
	// account, overwriting any previous value.
	SetProviderCustomerID(ctx context.Context, accountID uuid.UUID, provider Provider, customerID string) error
}
