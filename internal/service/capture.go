package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/watchhub/payments/internal/billing"
	"github.com/watchhub/payments/internal/domain"
	"github.com/watchhub/payments/internal/telemetry"
)

// CaptureService settles approved PayPal orders. Capture is the
// synchronous settlement path: the client returns from PayPal approval
// and asks us to take the money.
type CaptureService interface {
	// CaptureOrder captures a previously created order and, when the
	// capture completes, runs settlement. A capture that does not
	// complete returns ErrPaymentNotCompleted and leaves the order
	// pending; capturing an already-settled order also returns
	// ErrPaymentNotCompleted, without touching the provider.
	CaptureOrder(ctx context.Context, orderID string, accountID uuid.UUID) (*CaptureOutcome, error)
}

// CaptureOutcome is the result of a capture attempt. Warning is set
// when the payment settled but post-settlement bookkeeping failed.
type CaptureOutcome struct {
	OrderID string
	Status  string
	Success bool
	Warning string
}

// captureService implements CaptureService.
type captureService struct {
	orders     domain.OrderStore
	provider   billing.Provider
	reconciler Reconciler
	metrics    *telemetry.BusinessMetrics
	logger     *slog.Logger
}

// NewCaptureService creates a capture service bound to the PayPal
// provider.
func NewCaptureService(
	orders domain.OrderStore,
	provider billing.Provider,
	reconciler Reconciler,
	metrics *telemetry.BusinessMetrics,
	logger *slog.Logger,
) CaptureService {
	return &captureService{
		orders:     orders,
		provider:   provider,
		reconciler: reconciler,
		metrics:    metrics,
		logger:     logger.With(slog.String("component", "capture")),
	}
}

// CaptureOrder captures an order and settles it.
func (s *captureService) CaptureOrder(ctx context.Context, orderID string, accountID uuid.UUID) (*CaptureOutcome, error) {
	const op = "capture.order"

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if order.Provider != s.provider.Name() {
		return nil, ErrWrongOrderProvider
	}
	// Guest orders are capturable by anyone holding the order id, an
	// order created by an account only by that account.
	if order.AccountID != uuid.Nil && accountID != order.AccountID {
		return nil, ErrNotOrderOwner
	}

	// Terminal orders never reach the provider again. A completed order
	// is already settled, so a second capture is rejected rather than
	// re-acknowledged.
	if order.Status != domain.OrderPending {
		return nil, ErrPaymentNotCompleted
	}

	result, err := s.provider.CaptureOrder(ctx, orderID)
	if err != nil {
		var providerErr *billing.ProviderError
		if errors.As(err, &providerErr) && !providerErr.IsTemporary() {
			// Hard decline. The order stays pending: with PayPal the
			// buyer can pick another funding instrument and retry the
			// same order id. Only webhook-confirmed failures finalize.
			s.metrics.PaymentFailed.WithLabelValues(string(order.Provider), providerErr.Code).Inc()
			return nil, domain.WrapError(err, domain.EPAYMENT, op, providerErr.Message)
		}
		return nil, mapProviderError(err, op)
	}

	if !result.Completed() {
		// Not-completed captures (PENDING, ALREADY_CAPTURED, declines
		// surfaced as statuses) leave the order untouched. The order
		// stays pending and retryable; settlement happens only on a
		// COMPLETED capture.
		s.metrics.PaymentFailed.WithLabelValues(string(order.Provider), result.Status).Inc()
		return nil, ErrPaymentNotCompleted
	}

	if _, err := s.reconciler.HandleSettlement(ctx, SettlementParams{
		Provider:    order.Provider,
		OrderID:     orderID,
		AccountID:   accountID,
		PayerID:     result.PayerID,
		PayerEmail:  result.PayerEmail,
		AmountCents: result.AmountCents,
		Currency:    result.Currency,
		Payload:     result.Raw,
	}); err != nil {
		// The capture went through; settlement bookkeeping is the failing
		// part. Surface success and leave the trail to the reconciler.
		s.logger.Error("settlement failed after successful capture",
			slog.String("order_id", orderID),
			slog.String("error", err.Error()))
		telemetry.CaptureErrorWithOrder(err, string(order.Provider), orderID, nil)
		return &CaptureOutcome{
			OrderID: orderID,
			Status:  result.Status,
			Success: true,
			Warning: "payment captured but subscription activation is delayed",
		}, nil
	}

	return &CaptureOutcome{OrderID: orderID, Status: result.Status, Success: true}, nil
}
