package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/watchhub/payments/internal/domain"
)

// PaymentMethodStore implements domain.PaymentMethodStore using
// PostgreSQL. A partial unique index on (account_id, provider,
// external_id) WHERE active rejects duplicate active references while
// allowing a deactivated reference to be re-saved.
type PaymentMethodStore struct {
	pool *pgxpool.Pool
}

var _ domain.PaymentMethodStore = (*PaymentMethodStore)(nil)

// NewPaymentMethodStore creates a new PaymentMethodStore instance.
func NewPaymentMethodStore(pool *pgxpool.Pool) *PaymentMethodStore {
	return &PaymentMethodStore{pool: pool}
}

const paymentMethodColumns = `id, account_id, provider, external_id, coalesce(brand, ''), coalesce(last4, ''), coalesce(email, ''), is_default, active, created_at, updated_at`

func scanPaymentMethod(row pgx.Row) (*domain.PaymentMethod, error) {
	var pm domain.PaymentMethod
	err := row.Scan(&pm.ID, &pm.AccountID, &pm.Provider, &pm.ExternalID,
		&pm.Brand, &pm.Last4, &pm.Email, &pm.IsDefault, &pm.Active,
		&pm.CreatedAt, &pm.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &pm, nil
}

// CreatePaymentMethod inserts a new payment method. The method becomes
// the default when the account has no other active method.
func (s *PaymentMethodStore) CreatePaymentMethod(ctx context.Context, params domain.UpsertPaymentMethodParams) (*domain.PaymentMethod, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO payment_methods (id, account_id, provider, external_id, brand, last4, email, is_default, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7,
			NOT EXISTS (SELECT 1 FROM payment_methods WHERE account_id = $2 AND active),
			true)
		 RETURNING `+paymentMethodColumns,
		uuid.New(), params.AccountID, params.Provider, params.ExternalID,
		params.Brand, params.Last4, params.Email)

	pm, err := scanPaymentMethod(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.Conflict("payment_method.create",
				fmt.Sprintf("payment method already saved: %s", params.ExternalID))
		}
		return nil, fmt.Errorf("failed to create payment method: %w", err)
	}

	return pm, nil
}

// GetPaymentMethod retrieves a payment method by ID.
func (s *PaymentMethodStore) GetPaymentMethod(ctx context.Context, id uuid.UUID) (*domain.PaymentMethod, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+paymentMethodColumns+` FROM payment_methods WHERE id = $1`, id)

	pm, err := scanPaymentMethod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("payment_method.get", "payment method", id.String())
		}
		return nil, fmt.Errorf("failed to get payment method: %w", err)
	}

	return pm, nil
}

// ListPaymentMethods returns the account's active payment methods,
// default first.
func (s *PaymentMethodStore) ListPaymentMethods(ctx context.Context, accountID uuid.UUID) ([]domain.PaymentMethod, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+paymentMethodColumns+`
		 FROM payment_methods
		 WHERE account_id = $1 AND active
		 ORDER BY is_default DESC, created_at`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	defer rows.Close()

	var methods []domain.PaymentMethod
	for rows.Next() {
		pm, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment method: %w", err)
		}
		methods = append(methods, *pm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payment methods: %w", err)
	}

	return methods, nil
}

// DeactivatePaymentMethod flips the active flag off, retaining the row
// for audit history.
func (s *PaymentMethodStore) DeactivatePaymentMethod(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE payment_methods
		 SET active = false, is_default = false, updated_at = now()
		 WHERE id = $1 AND active`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate payment method: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("payment_method.deactivate", "payment method", id.String())
	}

	return nil
}
