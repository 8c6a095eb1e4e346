package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/watchhub/payments/internal/domain"
	"github.com/watchhub/payments/internal/events"
	"github.com/watchhub/payments/internal/telemetry"
)

// defaultEntitlementPeriod is used when the provider does not report a
// billing-period end (one-shot PayPal captures).
const defaultEntitlementPeriod = 30 * 24 * time.Hour

// Reconciler turns confirmed settlements into local state: it
// finalizes the order, activates the entitlement, saves the billing
// reference, and emits events.
//
// Everything downstream of the order transition is contained: once the
// provider has taken money, a failure to activate or notify is logged
// and counted, never surfaced as a request error. The order row plus
// the settlement warning metric are the reconciliation trail.
type Reconciler interface {
	// HandleSettlement processes a confirmed settlement exactly once.
	// A replayed event id or an already-finalized order returns
	// (nil, nil) with no side effects.
	HandleSettlement(ctx context.Context, params SettlementParams) (*domain.Subscription, error)

	// HandleSubscriptionRenewal moves the entitlement window after a
	// provider-reported renewal.
	HandleSubscriptionRenewal(ctx context.Context, providerSubscriptionID string, expiresAt time.Time) error

	// HandleSubscriptionCanceled deactivates the entitlement after a
	// provider-reported cancellation.
	HandleSubscriptionCanceled(ctx context.Context, provider domain.Provider, providerSubscriptionID string) error

	// HandleCheckoutExpired finalizes an order whose checkout session
	// expired without payment. This is the only path that marks an
	// order failed: capture-side rejections leave the order pending.
	HandleCheckoutExpired(ctx context.Context, provider domain.Provider, orderID string) error
}

// SettlementParams describes a confirmed settlement from either
// provider path.
type SettlementParams struct {
	Provider domain.Provider

	// OrderID is the provider-assigned order id (checkout session id or
	// PayPal order id).
	OrderID string

	// EventID dedupes webhook deliveries via the event ledger. Empty
	// for capture-driven settlements, which dedupe on order status.
	EventID   string
	EventType string

	// AccountID is the settling account when the caller knows it.
	// uuid.Nil means: recover it from the order row, then fall back to
	// an email lookup.
	AccountID     uuid.UUID
	CustomerEmail string

	// ProviderSubscriptionID links the entitlement to the provider
	// subscription for later renewal events. Empty for one-shot orders.
	ProviderSubscriptionID string

	// ProviderCustomerID / PayerID become the saved billing reference.
	ProviderCustomerID string
	PayerID            string
	PayerEmail         string

	AmountCents int64
	Currency    string

	// ExpiresAt is the entitlement window end. Zero means now plus the
	// default period.
	ExpiresAt time.Time

	// Payload is the raw provider settlement document, stored on the
	// order for audit.
	Payload json.RawMessage
}

// reconciler implements Reconciler.
type reconciler struct {
	orders         domain.OrderStore
	accounts       domain.AccountStore
	subscriptions  domain.SubscriptionStore
	paymentMethods domain.PaymentMethodStore
	ledger         domain.WebhookEventStore
	publisher      events.Publisher
	metrics        *telemetry.BusinessMetrics
	logger         *slog.Logger
}

// NewReconciler creates a new settlement reconciler.
func NewReconciler(
	orders domain.OrderStore,
	accounts domain.AccountStore,
	subscriptions domain.SubscriptionStore,
	paymentMethods domain.PaymentMethodStore,
	ledger domain.WebhookEventStore,
	publisher events.Publisher,
	metrics *telemetry.BusinessMetrics,
	logger *slog.Logger,
) Reconciler {
	return &reconciler{
		orders:         orders,
		accounts:       accounts,
		subscriptions:  subscriptions,
		paymentMethods: paymentMethods,
		ledger:         ledger,
		publisher:      publisher,
		metrics:        metrics,
		logger:         logger.With(slog.String("component", "reconciler")),
	}
}

// HandleSettlement processes a confirmed settlement.
func (r *reconciler) HandleSettlement(ctx context.Context, params SettlementParams) (*domain.Subscription, error) {
	log := r.logger.With(
		slog.String("provider", string(params.Provider)),
		slog.String("order_id", params.OrderID))

	if params.EventID != "" {
		inserted, err := r.ledger.RecordWebhookEvent(ctx, domain.WebhookEvent{
			EventID:   params.EventID,
			Provider:  params.Provider,
			EventType: params.EventType,
		})
		if err != nil {
			return nil, err
		}
		if !inserted {
			r.metrics.WebhookReplayed.WithLabelValues(string(params.Provider), params.EventType).Inc()
			log.Info("skipping replayed event", slog.String("event_id", params.EventID))
			return nil, nil
		}
	}

	order, err := r.orders.GetOrder(ctx, params.OrderID)
	if err != nil {
		r.releaseEvent(ctx, params, log)
		return nil, err
	}

	if err := r.orders.MarkOrderCompleted(ctx, params.OrderID, params.Payload); err != nil {
		if errors.Is(err, domain.ErrOrderFinalized) {
			log.Info("order already settled, skipping")
			return nil, nil
		}
		r.releaseEvent(ctx, params, log)
		return nil, err
	}

	amountCents := params.AmountCents
	if amountCents == 0 {
		amountCents = order.AmountCents
	}
	currency := params.Currency
	if currency == "" {
		currency = order.Currency
	}

	// Orders recorded without a recognized plan type fall back to the
	// display-name mapping, which defaults to basic.
	planType := order.PlanType
	if !domain.IsValidPlanType(string(planType)) {
		planType = domain.PlanTypeFromName(order.PlanName)
		log.Warn("order carries no valid plan type, mapped from plan name",
			slog.String("plan_name", order.PlanName),
			slog.String("plan_type", string(planType)))
	}

	r.metrics.PaymentSucceeded.WithLabelValues(string(params.Provider), string(planType)).Inc()
	r.metrics.RevenueCollected.WithLabelValues(string(params.Provider), currency).Add(float64(amountCents))

	accountID := r.resolveAccount(ctx, params, order, log)

	settled := events.PaymentSettled{
		OrderID:     order.ID,
		Provider:    params.Provider,
		PlanType:    planType,
		AmountCents: amountCents,
		Currency:    currency,
		SettledAt:   time.Now().UTC(),
	}
	if accountID != uuid.Nil {
		settled.AccountID = accountID.String()
	}
	if err := r.publisher.PublishPaymentSettled(settled); err != nil {
		r.warn(log, params.Provider, "publish_settled", err)
	}

	if accountID == uuid.Nil {
		// Guest settlement: money is taken and the order records it,
		// but there is no account to entitle. Support resolves these
		// from the order table.
		log.Warn("settled order has no account, skipping activation",
			slog.String("customer_email", params.CustomerEmail))
		r.warn(log, params.Provider, "no_account", nil)
		return nil, nil
	}

	expiresAt := params.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = time.Now().UTC().Add(defaultEntitlementPeriod)
	}

	sub, err := r.subscriptions.ActivateSubscription(ctx, domain.ActivateSubscriptionParams{
		AccountID:              accountID,
		PlanType:               planType,
		Provider:               params.Provider,
		ProviderSubscriptionID: params.ProviderSubscriptionID,
		ExpiresAt:              expiresAt,
	})
	if err != nil {
		r.warn(log, params.Provider, "activate_subscription", err)
		return nil, nil
	}

	r.metrics.SubscriptionsActivated.WithLabelValues(string(params.Provider), string(planType)).Inc()
	log.Info("subscription activated",
		slog.String("account_id", accountID.String()),
		slog.String("plan_type", string(planType)),
		slog.Time("expires_at", expiresAt))

	if err := r.publisher.PublishSubscriptionActivated(events.SubscriptionActivated{
		SubscriptionID: sub.ID.String(),
		AccountID:      accountID.String(),
		PlanType:       sub.PlanType,
		Provider:       params.Provider,
		ExpiresAt:      sub.ExpiresAt,
	}); err != nil {
		r.warn(log, params.Provider, "publish_activated", err)
	}

	r.saveBillingReference(ctx, params, accountID, log)

	return sub, nil
}

// releaseEvent backs a failed settlement out of the event ledger so
// the provider's redelivery is not deduped away. A release that itself
// fails is logged; the delivery then needs manual replay.
func (r *reconciler) releaseEvent(ctx context.Context, params SettlementParams, log *slog.Logger) {
	if params.EventID == "" {
		return
	}
	if err := r.ledger.ReleaseWebhookEvent(ctx, params.Provider, params.EventID); err != nil {
		log.Error("failed to release webhook event after settlement failure",
			slog.String("event_id", params.EventID),
			slog.String("error", err.Error()))
		telemetry.CaptureError(err, map[string]interface{}{"event_id": params.EventID})
	}
}

// resolveAccount recovers the settling account from, in order: the
// caller, the order row, and an email lookup. uuid.Nil means guest.
func (r *reconciler) resolveAccount(ctx context.Context, params SettlementParams, order *domain.Order, log *slog.Logger) uuid.UUID {
	if params.AccountID != uuid.Nil {
		return params.AccountID
	}
	if order.AccountID != uuid.Nil {
		return order.AccountID
	}
	if params.CustomerEmail == "" {
		return uuid.Nil
	}

	account, err := r.accounts.GetAccountByEmail(ctx, params.CustomerEmail)
	if err != nil {
		if !domain.IsCode(err, domain.ENOTFOUND) {
			r.warn(log, params.Provider, "account_lookup", err)
		}
		return uuid.Nil
	}

	return account.ID
}

// saveBillingReference records the payer or customer reference so the
// next purchase can reuse it. Duplicate saves are expected on renewals
// and ignored.
func (r *reconciler) saveBillingReference(ctx context.Context, params SettlementParams, accountID uuid.UUID, log *slog.Logger) {
	externalID := params.PayerID
	if externalID == "" {
		externalID = params.ProviderCustomerID
	}
	if externalID == "" {
		return
	}

	if params.Provider == domain.ProviderPayPal && params.PayerID != "" {
		if err := r.accounts.SetProviderCustomerID(ctx, accountID, domain.ProviderPayPal, params.PayerID); err != nil {
			r.warn(log, params.Provider, "save_payer_reference", err)
		}
	}

	_, err := r.paymentMethods.CreatePaymentMethod(ctx, domain.UpsertPaymentMethodParams{
		AccountID:  accountID,
		Provider:   params.Provider,
		ExternalID: externalID,
		Email:      params.PayerEmail,
	})
	switch {
	case err == nil:
		r.metrics.PaymentMethodsSaved.WithLabelValues(string(params.Provider)).Inc()
	case domain.IsCode(err, domain.ECONFLICT):
		// Already on file.
	default:
		r.warn(log, params.Provider, "save_payment_method", err)
	}
}

// HandleSubscriptionRenewal moves the entitlement window.
func (r *reconciler) HandleSubscriptionRenewal(ctx context.Context, providerSubscriptionID string, expiresAt time.Time) error {
	err := r.subscriptions.UpdateSubscriptionPeriod(ctx, providerSubscriptionID, expiresAt)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			// Renewal for a subscription this service never activated.
			// Acknowledge so the provider stops retrying.
			r.logger.Warn("renewal for unknown subscription",
				slog.String("provider_subscription_id", providerSubscriptionID))
			return nil
		}
		return err
	}

	r.logger.Info("subscription period extended",
		slog.String("provider_subscription_id", providerSubscriptionID),
		slog.Time("expires_at", expiresAt))
	return nil
}

// HandleSubscriptionCanceled deactivates the entitlement.
func (r *reconciler) HandleSubscriptionCanceled(ctx context.Context, provider domain.Provider, providerSubscriptionID string) error {
	if err := r.subscriptions.DeactivateByProviderSubscriptionID(ctx, providerSubscriptionID); err != nil {
		return err
	}

	r.metrics.SubscriptionsDeactivated.WithLabelValues(string(provider)).Inc()
	r.logger.Info("subscription deactivated",
		slog.String("provider_subscription_id", providerSubscriptionID))
	return nil
}

// HandleCheckoutExpired marks an abandoned order failed.
func (r *reconciler) HandleCheckoutExpired(ctx context.Context, provider domain.Provider, orderID string) error {
	err := r.orders.MarkOrderFailed(ctx, orderID, nil)
	switch {
	case err == nil:
		r.metrics.PaymentFailed.WithLabelValues(string(provider), "session_expired").Inc()
		r.logger.Info("order failed after checkout session expiry",
			slog.String("provider", string(provider)),
			slog.String("order_id", orderID))
		return nil
	case errors.Is(err, domain.ErrOrderFinalized):
		// Expiry delivered after the session settled (or after a
		// previous expiry). Nothing to change.
		return nil
	case domain.IsCode(err, domain.ENOTFOUND):
		// Session this service never recorded, acknowledge.
		r.logger.Warn("expiry for unknown order", slog.String("order_id", orderID))
		return nil
	default:
		return err
	}
}

// warn logs a contained settlement failure and bumps the warning
// metric.
func (r *reconciler) warn(log *slog.Logger, provider domain.Provider, step string, err error) {
	r.metrics.SettlementWarnings.WithLabelValues(string(provider), step).Inc()
	if err != nil {
		log.Error("settlement step failed",
			slog.String("step", step),
			slog.String("error", err.Error()))
		telemetry.CaptureError(err, map[string]interface{}{"step": step})
	}
}
