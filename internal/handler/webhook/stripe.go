package webhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"

	"github.com/watchhub/payments/internal/billing"
	"github.com/watchhub/payments/internal/domain"
	"github.com/watchhub/payments/internal/handler"
	"github.com/watchhub/payments/internal/service"
	"github.com/watchhub/payments/internal/telemetry"
)

// maxWebhookBody bounds the webhook payload we are willing to read.
// Stripe events are well under this.
const maxWebhookBody = 1 << 20

// StripeHandler receives Stripe webhook deliveries and routes verified
// events to the settlement reconciler.
type StripeHandler struct {
	provider   billing.Provider
	reconciler service.Reconciler
	metrics    *telemetry.BusinessMetrics
	logger     *slog.Logger
}

// NewStripeHandler creates a Stripe webhook handler.
func NewStripeHandler(
	provider billing.Provider,
	reconciler service.Reconciler,
	metrics *telemetry.BusinessMetrics,
	logger *slog.Logger,
) *StripeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeHandler{
		provider:   provider,
		reconciler: reconciler,
		metrics:    metrics,
		logger:     logger.With(slog.String("component", "stripe_webhook")),
	}
}

// HandleWebhook processes POST /webhooks/stripe.
//
// The signature is verified before anything in the payload is trusted.
// Processing failures after verification still return 200 only when the
// event was acknowledged as handled or replayed; real failures return
// 500 so Stripe redelivers.
func (h *StripeHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodPost {
		handler.ErrorResponse(w, r, domain.Invalid("webhook.stripe", "method not allowed"))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("webhook.stripe", "error reading request body"))
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if err := h.provider.VerifyWebhookSignature(payload, signature); err != nil {
		h.logger.Warn("webhook signature verification failed", slog.Any("error", err))
		h.metrics.WebhookFailed.WithLabelValues("stripe", "invalid_signature").Inc()
		handler.ErrorResponse(w, r, domain.Invalid("webhook.stripe", "invalid webhook signature"))
		return
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		h.metrics.WebhookFailed.WithLabelValues("stripe", "malformed_payload").Inc()
		handler.ErrorResponse(w, r, domain.Invalid("webhook.stripe", "invalid JSON payload"))
		return
	}

	eventType := string(event.Type)
	h.metrics.WebhookReceived.WithLabelValues("stripe", eventType).Inc()
	defer func() {
		h.metrics.WebhookLatency.WithLabelValues("stripe", eventType).Observe(time.Since(start).Seconds())
	}()

	log := h.logger.With(
		slog.String("event_id", event.ID),
		slog.String("event_type", eventType),
	)
	log.Info("webhook received")

	switch event.Type {
	case "checkout.session.completed":
		err = h.handleCheckoutCompleted(r, event)

	case "checkout.session.expired":
		err = h.handleCheckoutExpired(r, event)

	case "customer.subscription.updated":
		err = h.handleSubscriptionUpdated(r, event)

	case "customer.subscription.deleted":
		err = h.handleSubscriptionDeleted(r, event)

	default:
		log.Debug("unhandled event type")
	}

	if err != nil {
		log.Error("webhook processing failed", slog.Any("error", err))
		h.metrics.WebhookFailed.WithLabelValues("stripe", "processing_error").Inc()
		telemetry.CaptureErrorWithOrder(err, "stripe", event.ID, map[string]interface{}{
			"event_type": eventType,
		})
		// Non-200 makes Stripe retry the delivery.
		handler.ErrorResponse(w, r, domain.Internal(err, "webhook.stripe", "webhook processing failed"))
		return
	}

	h.metrics.WebhookProcessed.WithLabelValues("stripe", eventType).Inc()
	handler.RespondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// handleCheckoutCompleted settles a finished hosted-checkout session.
func (h *StripeHandler) handleCheckoutCompleted(r *http.Request, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return domain.Invalid("webhook.stripe", "invalid checkout session payload")
	}

	var accountID uuid.UUID
	if raw := session.Metadata["accountId"]; raw != "" {
		if parsed, err := uuid.Parse(raw); err == nil {
			accountID = parsed
		}
	}

	var customerEmail string
	if session.CustomerDetails != nil {
		customerEmail = session.CustomerDetails.Email
	}

	var customerID string
	if session.Customer != nil {
		customerID = session.Customer.ID
	}

	var subscriptionID string
	if session.Subscription != nil {
		subscriptionID = session.Subscription.ID
	}

	// The session object does not carry the billing-period end; look it
	// up so the entitlement window matches what Stripe will bill.
	var expiresAt time.Time
	if subscriptionID != "" {
		sub, err := h.provider.GetSubscription(r.Context(), subscriptionID)
		if err != nil {
			h.logger.Warn("subscription lookup failed, using default entitlement period",
				slog.String("subscription_id", subscriptionID),
				slog.Any("error", err),
			)
		} else {
			expiresAt = sub.CurrentPeriodEnd
		}
	}

	_, err := h.reconciler.HandleSettlement(r.Context(), service.SettlementParams{
		Provider:               domain.ProviderStripe,
		OrderID:                session.ID,
		EventID:                event.ID,
		EventType:              string(event.Type),
		AccountID:              accountID,
		CustomerEmail:          customerEmail,
		ProviderSubscriptionID: subscriptionID,
		ProviderCustomerID:     customerID,
		AmountCents:            session.AmountTotal,
		Currency:               string(session.Currency),
		ExpiresAt:              expiresAt,
		Payload:                event.Data.Raw,
	})
	return err
}

// handleCheckoutExpired finalizes the order behind an abandoned
// session.
func (h *StripeHandler) handleCheckoutExpired(r *http.Request, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return domain.Invalid("webhook.stripe", "invalid checkout session payload")
	}

	return h.reconciler.HandleCheckoutExpired(r.Context(), domain.ProviderStripe, session.ID)
}

// handleSubscriptionUpdated moves the entitlement window on renewal.
func (h *StripeHandler) handleSubscriptionUpdated(r *http.Request, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return domain.Invalid("webhook.stripe", "invalid subscription payload")
	}

	if sub.Status != stripe.SubscriptionStatusActive {
		h.logger.Debug("ignoring subscription update in non-active status",
			slog.String("subscription_id", sub.ID),
			slog.String("status", string(sub.Status)),
		)
		return nil
	}

	var periodEnd time.Time
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		periodEnd = time.Unix(sub.Items.Data[0].CurrentPeriodEnd, 0)
	}
	if periodEnd.IsZero() {
		return domain.Invalid("webhook.stripe", "subscription update missing period end")
	}

	return h.reconciler.HandleSubscriptionRenewal(r.Context(), sub.ID, periodEnd)
}

// handleSubscriptionDeleted drops the entitlement on cancellation.
func (h *StripeHandler) handleSubscriptionDeleted(r *http.Request, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return domain.Invalid("webhook.stripe", "invalid subscription payload")
	}

	return h.reconciler.HandleSubscriptionCanceled(r.Context(), domain.ProviderStripe, sub.ID)
}
