package domain

import (
	"context"
	"strings"
)

// PlanType is the subscription tier an account is entitled to.
type PlanType string

const (
	PlanBasic    PlanType = "basic"
	PlanStandard PlanType = "standard"
	PlanPremium  PlanType = "premium"
)

// IsValidPlanType reports whether s is a known plan type value.
func IsValidPlanType(s string) bool {
	switch PlanType(s) {
	case PlanBasic, PlanStandard, PlanPremium:
		return true
	}
	return false
}

// PlanTypeFromName maps a display name to a plan type using
// case-insensitive substring matching. Names that match no known
// keyword fall back to the basic tier; callers treat that as a safe
// default rather than an error.
func PlanTypeFromName(name string) PlanType {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "premium"):
		return PlanPremium
	case strings.Contains(lower, "standard"):
		return PlanStandard
	case strings.Contains(lower, "basic"):
		return PlanBasic
	default:
		return PlanBasic
	}
}

// Plan is immutable reference data describing a subscription tier.
type Plan struct {
	ID         string
	Name       string
	Type       PlanType
	PriceCents int64
	Currency   string
	Active     bool
}

// PlanStore provides read access to the plan catalog.
type PlanStore interface {
	// GetPlan retrieves a plan by ID.
	GetPlan(ctx context.Context, id string) (*Plan, error)

	// ListPlans returns all active plans.
	ListPlans(ctx context.Context) ([]Plan, error)
}
