package handler

import (
	"log/slog"
	"net/http"

	"github.com/watchhub/payments/internal/service"
)

// CaptureHandler settles approved PayPal orders.
type CaptureHandler struct {
	capture service.CaptureService
	logger  *slog.Logger
}

// NewCaptureHandler creates a capture handler.
func NewCaptureHandler(capture service.CaptureService, logger *slog.Logger) *CaptureHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CaptureHandler{
		capture: capture,
		logger:  logger,
	}
}

type captureRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}

type captureResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	Warning string `json:"warning,omitempty"`
}

// CapturePayPalOrder handles POST /api/paypal/capture.
// Retries of an already-settled order succeed without side effects.
func (h *CaptureHandler) CapturePayPalOrder(w http.ResponseWriter, r *http.Request) {
	const op = "capture.paypal"

	var req captureRequest
	if err := DecodeJSON(w, r, op, &req); err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}

	outcome, err := h.capture.CaptureOrder(r.Context(), req.OrderID, accountIDFromRequest(r))
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, captureResponse{
		Success: outcome.Success,
		OrderID: outcome.OrderID,
		Status:  outcome.Status,
		Warning: outcome.Warning,
	})
}
