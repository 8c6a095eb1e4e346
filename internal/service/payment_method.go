package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/watchhub/payments/internal/domain"
	"github.com/watchhub/payments/internal/telemetry"
)

// PaymentMethodService manages saved billing references for an
// account.
type PaymentMethodService interface {
	// SavePaymentMethod stores a billing reference. Duplicate active
	// references for the account are rejected with a conflict.
	SavePaymentMethod(ctx context.Context, params domain.UpsertPaymentMethodParams) (*domain.PaymentMethod, error)

	// ListPaymentMethods returns the account's active references,
	// default first.
	ListPaymentMethods(ctx context.Context, accountID uuid.UUID) ([]domain.PaymentMethod, error)

	// RemovePaymentMethod deactivates a reference. Only the owning
	// account may remove it.
	RemovePaymentMethod(ctx context.Context, accountID, methodID uuid.UUID) error
}

// paymentMethodService implements PaymentMethodService.
type paymentMethodService struct {
	store   domain.PaymentMethodStore
	metrics *telemetry.BusinessMetrics
	logger  *slog.Logger
}

// NewPaymentMethodService creates a new payment method service.
func NewPaymentMethodService(store domain.PaymentMethodStore, metrics *telemetry.BusinessMetrics, logger *slog.Logger) PaymentMethodService {
	return &paymentMethodService{
		store:   store,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "payment_methods")),
	}
}

// SavePaymentMethod stores a billing reference.
func (s *paymentMethodService) SavePaymentMethod(ctx context.Context, params domain.UpsertPaymentMethodParams) (*domain.PaymentMethod, error) {
	if params.Provider != domain.ProviderStripe && params.Provider != domain.ProviderPayPal {
		return nil, ErrUnknownProvider
	}
	if params.ExternalID == "" {
		return nil, domain.Invalid("payment_method.save", "external reference is required")
	}

	pm, err := s.store.CreatePaymentMethod(ctx, params)
	if err != nil {
		return nil, err
	}

	s.metrics.PaymentMethodsSaved.WithLabelValues(string(params.Provider)).Inc()
	s.logger.Info("payment method saved",
		slog.String("account_id", params.AccountID.String()),
		slog.String("provider", string(params.Provider)),
		slog.Bool("default", pm.IsDefault))

	return pm, nil
}

// ListPaymentMethods returns the account's active references.
func (s *paymentMethodService) ListPaymentMethods(ctx context.Context, accountID uuid.UUID) ([]domain.PaymentMethod, error) {
	return s.store.ListPaymentMethods(ctx, accountID)
}

// RemovePaymentMethod deactivates a reference after an ownership
// check.
func (s *paymentMethodService) RemovePaymentMethod(ctx context.Context, accountID, methodID uuid.UUID) error {
	pm, err := s.store.GetPaymentMethod(ctx, methodID)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			return ErrPaymentMethodNotFound
		}
		return err
	}
	if pm.AccountID != accountID {
		return ErrNotPaymentMethodOwner
	}
	if !pm.Active {
		return ErrPaymentMethodNotFound
	}

	if err := s.store.DeactivatePaymentMethod(ctx, methodID); err != nil {
		return err
	}

	s.metrics.PaymentMethodsRemoved.WithLabelValues(string(pm.Provider)).Inc()
	return nil
}
