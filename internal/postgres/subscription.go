package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/watchhub/payments/internal/domain"
)

// SubscriptionStore implements domain.SubscriptionStore using
// PostgreSQL. A partial unique index on (account_id) WHERE active
// backs the at-most-one-active invariant; activation runs the
// deactivate and insert in one transaction so the index can never be
// violated mid-flight.
type SubscriptionStore struct {
	pool *pgxpool.Pool
}

var _ domain.SubscriptionStore = (*SubscriptionStore)(nil)

// NewSubscriptionStore creates a new SubscriptionStore instance.
func NewSubscriptionStore(pool *pgxpool.Pool) *SubscriptionStore {
	return &SubscriptionStore{pool: pool}
}

const subscriptionColumns = `id, account_id, plan_type, active, provider, coalesce(provider_subscription_id, ''), started_at, expires_at, created_at, updated_at`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(&sub.ID, &sub.AccountID, &sub.PlanType, &sub.Active,
		&sub.Provider, &sub.ProviderSubscriptionID, &sub.StartedAt,
		&sub.ExpiresAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ActivateSubscription deactivates any existing subscriptions for the
// account and inserts a new active row in a single transaction.
func (s *SubscriptionStore) ActivateSubscription(ctx context.Context, params domain.ActivateSubscriptionParams) (*domain.Subscription, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE subscriptions SET active = false, updated_at = now()
		 WHERE account_id = $1 AND active`, params.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate subscriptions: %w", err)
	}

	var providerSubID *string
	if params.ProviderSubscriptionID != "" {
		providerSubID = &params.ProviderSubscriptionID
	}

	row := tx.QueryRow(ctx,
		`INSERT INTO subscriptions (id, account_id, plan_type, active, provider, provider_subscription_id, started_at, expires_at)
		 VALUES ($1, $2, $3, true, $4, $5, now(), $6)
		 RETURNING `+subscriptionColumns,
		uuid.New(), params.AccountID, params.PlanType, params.Provider,
		providerSubID, params.ExpiresAt)

	sub, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert subscription: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return sub, nil
}

// GetActiveSubscription returns the account's active subscription.
func (s *SubscriptionStore) GetActiveSubscription(ctx context.Context, accountID uuid.UUID) (*domain.Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions WHERE account_id = $1 AND active`, accountID)

	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("subscription.get_active", "active subscription", accountID.String())
		}
		return nil, fmt.Errorf("failed to get active subscription: %w", err)
	}

	return sub, nil
}

// UpdateSubscriptionPeriod moves the expiry of the subscription with
// the given provider subscription id.
func (s *SubscriptionStore) UpdateSubscriptionPeriod(ctx context.Context, providerSubscriptionID string, expiresAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE subscriptions SET expires_at = $1, updated_at = now()
		 WHERE provider_subscription_id = $2 AND active`,
		expiresAt, providerSubscriptionID)
	if err != nil {
		return fmt.Errorf("failed to update subscription period: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("subscription.update_period", "subscription", providerSubscriptionID)
	}

	return nil
}

// DeactivateByProviderSubscriptionID marks the subscription with the
// given provider subscription id inactive. Unknown ids are ignored.
func (s *SubscriptionStore) DeactivateByProviderSubscriptionID(ctx context.Context, providerSubscriptionID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE subscriptions SET active = false, updated_at = now()
		 WHERE provider_subscription_id = $1 AND active`,
		providerSubscriptionID)
	if err != nil {
		return fmt.Errorf("failed to deactivate subscription: %w", err)
	}

	return nil
}
