package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/watchhub/payments/internal/billing"
	"github.com/watchhub/payments/internal/domain"
	"github.com/watchhub/payments/internal/telemetry"
)

// CheckoutService initiates payment flows. Prices always come from the
// plan catalog, never from the client; a client-supplied displayed
// price is only ever used to detect stale pricing.
type CheckoutService interface {
	// CreateCheckout creates a provider checkout for a plan and records
	// a pending order. Returns the provider checkout id and the URL the
	// viewer must be redirected to (Stripe hosted checkout or PayPal
	// approval link).
	CreateCheckout(ctx context.Context, params CreateCheckoutParams) (*CheckoutResult, error)
}

// CreateCheckoutParams contains parameters for starting a checkout.
type CreateCheckoutParams struct {
	Provider  domain.Provider
	PlanID    string
	AccountID uuid.UUID // uuid.Nil for guest checkout

	// DisplayedPrice is the decimal price string the client showed the
	// viewer (e.g. "5.99"). When present it must match the catalog
	// price, guarding against stale client caches.
	DisplayedPrice string
}

// CheckoutResult is the outcome of starting a checkout.
type CheckoutResult struct {
	OrderID     string
	RedirectURL string
	Provider    domain.Provider
}

// checkoutService implements CheckoutService.
type checkoutService struct {
	plans     domain.PlanStore
	orders    domain.OrderStore
	providers map[domain.Provider]billing.Provider
	resolvers map[domain.Provider]CustomerResolver
	baseURL   string
	metrics   *telemetry.BusinessMetrics
	logger    *slog.Logger
}

// NewCheckoutService creates a new checkout service. The resolvers map
// may omit providers that have no customer concept.
func NewCheckoutService(
	plans domain.PlanStore,
	orders domain.OrderStore,
	providers map[domain.Provider]billing.Provider,
	resolvers map[domain.Provider]CustomerResolver,
	baseURL string,
	metrics *telemetry.BusinessMetrics,
	logger *slog.Logger,
) CheckoutService {
	return &checkoutService{
		plans:     plans,
		orders:    orders,
		providers: providers,
		resolvers: resolvers,
		baseURL:   baseURL,
		metrics:   metrics,
		logger:    logger.With(slog.String("component", "checkout")),
	}
}

// CreateCheckout starts a payment flow for a plan.
func (s *checkoutService) CreateCheckout(ctx context.Context, params CreateCheckoutParams) (*CheckoutResult, error) {
	const op = "checkout.create"

	provider, ok := s.providers[params.Provider]
	if !ok {
		return nil, ErrUnknownProvider
	}

	plan, err := s.plans.GetPlan(ctx, params.PlanID)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	if !plan.Active {
		return nil, ErrPlanInactive
	}

	if err := verifyDisplayedPrice(params.DisplayedPrice, plan.PriceCents); err != nil {
		return nil, err
	}

	var customerID string
	if params.AccountID != uuid.Nil {
		if resolver, ok := s.resolvers[params.Provider]; ok {
			customerID, err = resolver.ResolveCustomer(ctx, params.AccountID)
			if err != nil {
				return nil, err
			}
		}
	}

	accountID := ""
	if params.AccountID != uuid.Nil {
		accountID = params.AccountID.String()
	}

	checkout, err := provider.CreateCheckout(ctx, billing.CreateCheckoutParams{
		PlanID:          plan.ID,
		PlanName:        plan.Name,
		PlanType:        plan.Type,
		UnitAmountCents: plan.PriceCents,
		Currency:        plan.Currency,
		CustomerID:      customerID,
		AccountID:       accountID,
		SuccessURL:      s.baseURL + "/checkout/success?provider=" + string(params.Provider),
		CancelURL:       s.baseURL + "/checkout/cancel",
	})
	if err != nil {
		return nil, mapProviderError(err, op)
	}

	order := &domain.Order{
		ID:          checkout.ID,
		Provider:    params.Provider,
		AccountID:   params.AccountID,
		PlanID:      plan.ID,
		PlanName:    plan.Name,
		PlanType:    plan.Type,
		AmountCents: plan.PriceCents,
		Currency:    plan.Currency,
	}
	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	s.metrics.CheckoutStarted.WithLabelValues(string(params.Provider), string(plan.Type)).Inc()
	s.logger.Info("checkout created",
		slog.String("provider", string(params.Provider)),
		slog.String("order_id", checkout.ID),
		slog.String("plan_id", plan.ID))

	return &CheckoutResult{
		OrderID:     checkout.ID,
		RedirectURL: checkout.URL,
		Provider:    params.Provider,
	}, nil
}

// verifyDisplayedPrice compares a client-displayed decimal price
// string against the catalog price in cents.
func verifyDisplayedPrice(displayed string, priceCents int64) error {
	if displayed == "" {
		return nil
	}

	price, err := decimal.NewFromString(displayed)
	if err != nil {
		return domain.Invalid("checkout.create", fmt.Sprintf("invalid price: %s", displayed))
	}

	catalog := decimal.New(priceCents, -2)
	if !price.Equal(catalog) {
		return ErrPriceMismatch
	}

	return nil
}

// mapProviderError converts billing package errors to domain errors.
func mapProviderError(err error, op string) error {
	switch {
	case errors.Is(err, billing.ErrProviderUnavailable):
		return domain.Unavailable(err, op, "Payment provider is temporarily unavailable")
	case errors.Is(err, billing.ErrNotSupported):
		return domain.Invalid(op, "Operation not supported by this payment provider")
	}

	var providerErr *billing.ProviderError
	if errors.As(err, &providerErr) {
		if providerErr.IsTemporary() {
			return domain.Unavailable(err, op, "Payment provider is temporarily unavailable")
		}
		return domain.WrapError(err, domain.EPAYMENT, op, providerErr.Message)
	}

	return domain.Internal(err, op, "payment provider call failed")
}
