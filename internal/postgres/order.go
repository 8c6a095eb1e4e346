package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/watchhub/payments/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
// Terminal status transitions are guarded in SQL so that a replayed
// settlement can never overwrite a finalized order.
type OrderStore struct {
	pool *pgxpool.Pool
}

var _ domain.OrderStore = (*OrderStore)(nil)

// NewOrderStore creates a new OrderStore instance.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// CreateOrder records a new pending order.
func (s *OrderStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	var accountID *uuid.UUID
	if order.AccountID != uuid.Nil {
		accountID = &order.AccountID
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO orders (id, provider, account_id, plan_id, plan_name, plan_type, amount_cents, currency, status, provider_payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at, updated_at`,
		order.ID, order.Provider, accountID, order.PlanID, order.PlanName,
		order.PlanType, order.AmountCents, order.Currency, domain.OrderPending,
		order.ProviderPayload).
		Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Conflict("order.create", fmt.Sprintf("order already exists: %s", order.ID))
		}
		return fmt.Errorf("failed to create order: %w", err)
	}

	order.Status = domain.OrderPending
	return nil
}

// GetOrder retrieves an order by its provider-assigned ID.
func (s *OrderStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var (
		o         domain.Order
		accountID *uuid.UUID
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, provider, account_id, plan_id, plan_name, plan_type, amount_cents, currency, status, provider_payload, created_at, updated_at
		 FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.Provider, &accountID, &o.PlanID, &o.PlanName, &o.PlanType,
			&o.AmountCents, &o.Currency, &o.Status, &o.ProviderPayload,
			&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("order.get", "order", id)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	if accountID != nil {
		o.AccountID = *accountID
	}

	return &o, nil
}

// MarkOrderCompleted transitions a pending order to completed.
func (s *OrderStore) MarkOrderCompleted(ctx context.Context, id string, payload json.RawMessage) error {
	return s.finalizeOrder(ctx, id, domain.OrderCompleted, payload)
}

// MarkOrderFailed transitions a pending order to failed.
func (s *OrderStore) MarkOrderFailed(ctx context.Context, id string, payload json.RawMessage) error {
	return s.finalizeOrder(ctx, id, domain.OrderFailed, payload)
}

// finalizeOrder applies a terminal transition. The WHERE clause only
// matches pending orders, so a zero row count on an existing order
// means it was already finalized.
func (s *OrderStore) finalizeOrder(ctx context.Context, id string, status domain.OrderStatus, payload json.RawMessage) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders
		 SET status = $1, provider_payload = COALESCE($2, provider_payload), updated_at = now()
		 WHERE id = $3 AND status = $4`,
		status, payload, id, domain.OrderPending)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check order existence: %w", err)
	}
	if !exists {
		return domain.NotFound("order.finalize", "order", id)
	}

	return domain.ErrOrderFinalized
}
