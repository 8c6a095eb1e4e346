package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/watchhub/payments/internal/domain"
	"github.com/watchhub/payments/internal/middleware"
	"github.com/watchhub/payments/internal/service"
)

// PaymentMethodHandler manages saved billing references for the
// authenticated account. All routes require authentication.
type PaymentMethodHandler struct {
	methods service.PaymentMethodService
	logger  *slog.Logger
}

// NewPaymentMethodHandler creates a payment method handler.
func NewPaymentMethodHandler(methods service.PaymentMethodService, logger *slog.Logger) *PaymentMethodHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentMethodHandler{
		methods: methods,
		logger:  logger,
	}
}

type paymentMethodResponse struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Brand     string    `json:"brand,omitempty"`
	Last4     string    `json:"last4,omitempty"`
	Email     string    `json:"email,omitempty"`
	IsDefault bool      `json:"isDefault"`
	CreatedAt time.Time `json:"createdAt"`
}

func toPaymentMethodResponse(m domain.PaymentMethod) paymentMethodResponse {
	return paymentMethodResponse{
		ID:        m.ID.String(),
		Provider:  string(m.Provider),
		Brand:     m.Brand,
		Last4:     m.Last4,
		Email:     m.Email,
		IsDefault: m.IsDefault,
		CreatedAt: m.CreatedAt,
	}
}

// List handles GET /api/payment-methods.
func (h *PaymentMethodHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		UnauthorizedResponse(w, r)
		return
	}

	methods, err := h.methods.ListPaymentMethods(r.Context(), identity.AccountID)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	out := make([]paymentMethodResponse, 0, len(methods))
	for _, m := range methods {
		out = append(out, toPaymentMethodResponse(m))
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{"paymentMethods": out})
}

type savePaymentMethodRequest struct {
	Provider   string `json:"provider" validate:"required,oneof=stripe paypal"`
	ExternalID string `json:"externalId" validate:"required,max=255"`
	Brand      string `json:"brand" validate:"omitempty,max=32"`
	Last4      string `json:"last4" validate:"omitempty,len=4"`
	Email      string `json:"email" validate:"omitempty,email"`
}

// Save handles POST /api/payment-methods.
func (h *PaymentMethodHandler) Save(w http.ResponseWriter, r *http.Request) {
	const op = "payment_method.save"

	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		UnauthorizedResponse(w, r)
		return
	}

	var req savePaymentMethodRequest
	if err := DecodeJSON(w, r, op, &req); err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}

	method, err := h.methods.SavePaymentMethod(r.Context(), domain.UpsertPaymentMethodParams{
		AccountID:  identity.AccountID,
		Provider:   domain.Provider(req.Provider),
		ExternalID: req.ExternalID,
		Brand:      req.Brand,
		Last4:      req.Last4,
		Email:      req.Email,
	})
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	RespondJSON(w, http.StatusCreated, toPaymentMethodResponse(*method))
}

// Remove handles DELETE /api/payment-methods/{id}.
// Removal is a soft delete; the row is retained for audit history.
func (h *PaymentMethodHandler) Remove(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		UnauthorizedResponse(w, r)
		return
	}

	methodID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, domain.Invalid("payment_method.remove", "invalid payment method id"))
		return
	}

	if err := h.methods.RemovePaymentMethod(r.Context(), identity.AccountID, methodID); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
