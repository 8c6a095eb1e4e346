package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/watchhub/payments/internal/domain"
)

// PlanStore implements domain.PlanStore using PostgreSQL.
// Plans are seeded by migrations and treated as read-only reference
// data at runtime.
type PlanStore struct {
	pool *pgxpool.Pool
}

var _ domain.PlanStore = (*PlanStore)(nil)

// NewPlanStore creates a new PlanStore instance.
func NewPlanStore(pool *pgxpool.Pool) *PlanStore {
	return &PlanStore{pool: pool}
}

// GetPlan retrieves a plan by ID.
func (s *PlanStore) GetPlan(ctx context.Context, id string) (*domain.Plan, error) {
	var p domain.Plan
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, plan_type, price_cents, currency, active
		 FROM plans WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Type, &p.PriceCents, &p.Currency, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("plan.get", "plan", id)
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}

	return &p, nil
}

// ListPlans returns all active plans ordered by price.
func (s *PlanStore) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, plan_type, price_cents, currency, active
		 FROM plans WHERE active ORDER BY price_cents`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []domain.Plan
	for rows.Next() {
		var p domain.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.Type, &p.PriceCents, &p.Currency, &p.Active); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plans: %w", err)
	}

	return plans, nil
}
