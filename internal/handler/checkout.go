package handler

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/watchhub/payments/internal/domain"
	"github.com/watchhub/payments/internal/middleware"
	"github.com/watchhub/payments/internal/service"
)

// CheckoutHandler starts payment flows for both providers.
type CheckoutHandler struct {
	checkout service.CheckoutService
	logger   *slog.Logger
}

// NewCheckoutHandler creates a checkout handler.
func NewCheckoutHandler(checkout service.CheckoutService, logger *slog.Logger) *CheckoutHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutHandler{
		checkout: checkout,
		logger:   logger,
	}
}

type stripeCheckoutRequest struct {
	PlanID   string `json:"planId" validate:"required"`
	PlanName string `json:"planName" validate:"required"`
	PlanType string `json:"planType" validate:"required,oneof=basic standard premium"`
	Price    string `json:"price" validate:"required"`
}

type stripeCheckoutResponse struct {
	URL string `json:"url"`
}

// CreateStripeCheckout handles POST /api/stripe/checkout.
// Returns the hosted checkout URL the client must redirect the viewer to.
func (h *CheckoutHandler) CreateStripeCheckout(w http.ResponseWriter, r *http.Request) {
	const op = "checkout.stripe"

	var req stripeCheckoutRequest
	if err := DecodeJSON(w, r, op, &req); err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}

	result, err := h.checkout.CreateCheckout(r.Context(), service.CreateCheckoutParams{
		Provider:       domain.ProviderStripe,
		PlanID:         req.PlanID,
		AccountID:      accountIDFromRequest(r),
		DisplayedPrice: req.Price,
	})
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, stripeCheckoutResponse{URL: result.RedirectURL})
}

type paypalOrderRequest struct {
	PlanID   string `json:"planId" validate:"required"`
	PlanName string `json:"planName" validate:"required"`
	Price    string `json:"price" validate:"required"`
}

type paypalOrderResponse struct {
	OrderID     string `json:"orderId"`
	ApprovalURL string `json:"approvalUrl"`
}

// CreatePayPalOrder handles POST /api/paypal/orders.
// Returns the provider order id and the approval URL for redirect.
func (h *CheckoutHandler) CreatePayPalOrder(w http.ResponseWriter, r *http.Request) {
	const op = "checkout.paypal"

	var req paypalOrderRequest
	if err := DecodeJSON(w, r, op, &req); err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}

	result, err := h.checkout.CreateCheckout(r.Context(), service.CreateCheckoutParams{
		Provider:       domain.ProviderPayPal,
		PlanID:         req.PlanID,
		AccountID:      accountIDFromRequest(r),
		DisplayedPrice: req.Price,
	})
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, paypalOrderResponse{
		OrderID:     result.OrderID,
		ApprovalURL: result.RedirectURL,
	})
}

// accountIDFromRequest returns the authenticated account id, or uuid.Nil
// for guest requests.
func accountIDFromRequest(r *http.Request) uuid.UUID {
	if identity := middleware.IdentityFromContext(r.Context()); identity != nil {
		return identity.AccountID
	}
	return uuid.Nil
}
