package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/watchhub/payments/internal/domain"
)

// PlanService exposes the plan catalog and the viewer's current
// entitlement.
type PlanService interface {
	ListPlans(ctx context.Context) ([]domain.Plan, error)
	GetActiveSubscription(ctx context.Context, accountID uuid.UUID) (*domain.Subscription, error)
}

type planService struct {
	plans         domain.PlanStore
	subscriptions domain.SubscriptionStore
}

// NewPlanService creates a new plan service.
func NewPlanService(plans domain.PlanStore, subscriptions domain.SubscriptionStore) PlanService {
	return &planService{plans: plans, subscriptions: subscriptions}
}

func (s *planService) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	return s.plans.ListPlans(ctx)
}

func (s *planService) GetActiveSubscription(ctx context.Context, accountID uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.subscriptions.GetActiveSubscription(ctx, accountID)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}
