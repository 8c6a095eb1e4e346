package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/watchhub/payments/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

var _ domain.AccountStore = (*AccountStore)(nil)

// NewAccountStore creates a new AccountStore instance.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

const accountColumns = `id, email, role, coalesce(stripe_customer_id, ''), coalesce(paypal_payer_id, ''), created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Email, &a.Role, &a.StripeCustomerID, &a.PayPalPayerID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccount retrieves an account by ID.
func (s *AccountStore) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("account.get", "account", id.String())
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// GetAccountByEmail retrieves an account by email.
func (s *AccountStore) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("account.get_by_email", "account", email)
		}
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}

	return account, nil
}

// SetProviderCustomerID persists a provider customer reference on the
// account.
func (s *AccountStore) SetProviderCustomerID(ctx context.Context, accountID uuid.UUID, provider domain.Provider, customerID string) error {
	var column string
	switch provider {
	case domain.ProviderStripe:
		column = "stripe_customer_id"
	case domain.ProviderPayPal:
		column = "paypal_payer_id"
	default:
		return domain.Invalid("account.set_customer_id", fmt.Sprintf("unknown provider: %s", provider))
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET `+column+` = $1, updated_at = now() WHERE id = $2`,
		customerID, accountID)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("account.set_customer_id", "account", accountID.String())
	}

	return nil
}
