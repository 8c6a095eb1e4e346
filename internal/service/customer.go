package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/watchhub/payments/internal/billing"
	"github.com/watchhub/payments/internal/domain"
)

// CustomerResolver maps an internal account to a provider customer
// reference, creating one on the provider the first time an account
// pays. Resolution is idempotent: a stored reference is reused, and a
// stale reference (customer deleted on the provider side) is replaced
// transparently.
type CustomerResolver interface {
	// ResolveCustomer returns a valid provider customer id for the
	// account. Returns "" with no error when the provider has no
	// customer concept.
	ResolveCustomer(ctx context.Context, accountID uuid.UUID) (string, error)
}

// customerResolver implements CustomerResolver.
type customerResolver struct {
	accounts domain.AccountStore
	provider billing.Provider
	logger   *slog.Logger
}

// NewCustomerResolver creates a resolver bound to one billing provider.
func NewCustomerResolver(accounts domain.AccountStore, provider billing.Provider, logger *slog.Logger) CustomerResolver {
	return &customerResolver{
		accounts: accounts,
		provider: provider,
		logger:   logger.With(slog.String("component", "customer_resolver")),
	}
}

// ResolveCustomer resolves or lazily creates the provider customer for
// an account.
func (r *customerResolver) ResolveCustomer(ctx context.Context, accountID uuid.UUID) (string, error) {
	const op = "customer.resolve"

	account, err := r.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return "", err
	}

	providerName := r.provider.Name()

	if stored := account.ProviderCustomerID(providerName); stored != "" {
		_, err := r.provider.GetCustomer(ctx, stored)
		switch {
		case err == nil:
			return stored, nil
		case errors.Is(err, billing.ErrCustomerNotFound):
			// Stale reference, fall through and recreate.
			r.logger.Warn("stored customer reference is stale, recreating",
				slog.String("account_id", accountID.String()),
				slog.String("provider", string(providerName)),
				slog.String("customer_id", stored))
		case errors.Is(err, billing.ErrNotSupported):
			return "", nil
		default:
			return "", domain.WrapError(err, domain.EUNAVAILABLE, op, "could not verify customer with provider")
		}
	}

	customer, err := r.provider.CreateCustomer(ctx, billing.CreateCustomerParams{
		Email: account.Email,
		Metadata: map[string]string{
			"accountId": accountID.String(),
		},
	})
	if err != nil {
		if errors.Is(err, billing.ErrNotSupported) {
			return "", nil
		}
		return "", domain.WrapError(err, domain.EUNAVAILABLE, op, "could not create customer with provider")
	}

	if err := r.accounts.SetProviderCustomerID(ctx, accountID, providerName, customer.ID); err != nil {
		// The provider-side customer exists either way. Persisting the
		// reference is retried on the next purchase, so log and go on.
		r.logger.Error("failed to persist provider customer reference",
			slog.String("account_id", accountID.String()),
			slog.String("provider", string(providerName)),
			slog.String("customer_id", customer.ID),
			slog.String("error", err.Error()))
	} else {
		r.logger.Info("created provider customer",
			slog.String("account_id", accountID.String()),
			slog.String("provider", string(providerName)),
			slog.String("customer_id", customer.ID))
	}

	return customer.ID, nil
}
