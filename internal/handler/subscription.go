package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/watchhub/payments/internal/domain"
	"github.com/watchhub/payments/internal/middleware"
	"github.com/watchhub/payments/internal/service"
)

// SubscriptionHandler exposes the plan catalog and the viewer's
// entitlement state.
type SubscriptionHandler struct {
	plans  service.PlanService
	logger *slog.Logger
}

// NewSubscriptionHandler creates a subscription handler.
func NewSubscriptionHandler(plans service.PlanService, logger *slog.Logger) *SubscriptionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionHandler{
		plans:  plans,
		logger: logger,
	}
}

type planResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	PriceCents int64  `json:"priceCents"`
	Currency   string `json:"currency"`
}

// ListPlans handles GET /api/plans. Public, no authentication required.
func (h *SubscriptionHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.ListPlans(r.Context())
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	out := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, planResponse{
			ID:         p.ID,
			Name:       p.Name,
			Type:       string(p.Type),
			PriceCents: p.PriceCents,
			Currency:   p.Currency,
		})
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{"plans": out})
}

type subscriptionResponse struct {
	PlanType  string    `json:"planType"`
	Provider  string    `json:"provider"`
	StartedAt time.Time `json:"startedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// GetSubscription handles GET /api/subscription.
// Returns {"subscription": null} when the account has no active
// entitlement, not a 404; the client treats both as "not subscribed".
func (h *SubscriptionHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		UnauthorizedResponse(w, r)
		return
	}

	sub, err := h.plans.GetActiveSubscription(r.Context(), identity.AccountID)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			RespondJSON(w, http.StatusOK, map[string]interface{}{"subscription": nil})
			return
		}
		ErrorResponse(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"subscription": subscriptionResponse{
			PlanType:  string(sub.PlanType),
			Provider:  string(sub.Provider),
			StartedAt: sub.StartedAt,
			ExpiresAt: sub.ExpiresAt,
		},
	})
}
