package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics holds Prometheus metrics for payment-level
// observability. Counters are segmented by provider so Stripe and
// PayPal funnels can be dashboarded side by side.
type BusinessMetrics struct {
	// Checkout funnel
	CheckoutStarted  *prometheus.CounterVec
	PaymentSucceeded *prometheus.CounterVec
	PaymentFailed    *prometheus.CounterVec

	// Webhooks and capture callbacks
	WebhookReceived  *prometheus.CounterVec
	WebhookProcessed *prometheus.CounterVec
	WebhookFailed    *prometheus.CounterVec
	WebhookReplayed  *prometheus.CounterVec
	WebhookLatency   *prometheus.HistogramVec

	// Subscriptions
	SubscriptionsActivated   *prometheus.CounterVec
	SubscriptionsDeactivated *prometheus.CounterVec

	// Payment methods
	PaymentMethodsSaved   *prometheus.CounterVec
	PaymentMethodsRemoved *prometheus.CounterVec

	// Revenue tracking (integer cents)
	RevenueCollected *prometheus.CounterVec

	// Settlement steps that failed after payment was taken. Anything
	// here means money moved but local state may need reconciling.
	SettlementWarnings *prometheus.CounterVec

	// External API performance
	ProviderAPILatency *prometheus.HistogramVec
}

// NewBusinessMetrics creates and registers all business metrics
func NewBusinessMetrics(namespace string) *BusinessMetrics {
	if namespace == "" {
		namespace = "watchhub"
	}

	subsystem := "payments"

	m := &BusinessMetrics{
		CheckoutStarted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_started_total",
				Help:      "Checkout sessions created",
			},
			[]string{"provider", "plan_type"},
		),
		PaymentSucceeded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_succeeded_total",
				Help:      "Payments that settled successfully",
			},
			[]string{"provider", "plan_type"},
		),
		PaymentFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_failed_total",
				Help:      "Payments rejected by the provider",
			},
			[]string{"provider", "reason"},
		),
		WebhookReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_received_total",
				Help:      "Webhook deliveries received",
			},
			[]string{"provider", "event_type"},
		),
		WebhookProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_processed_total",
				Help:      "Webhook deliveries processed to completion",
			},
			[]string{"provider", "event_type"},
		),
		WebhookFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_failed_total",
				Help:      "Webhook deliveries that failed processing",
			},
			[]string{"provider", "reason"},
		),
		WebhookReplayed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_replayed_total",
				Help:      "Webhook deliveries skipped as already processed",
			},
			[]string{"provider", "event_type"},
		),
		WebhookLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_duration_seconds",
				Help:      "Webhook processing duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider", "event_type"},
		),
		SubscriptionsActivated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "subscriptions_activated_total",
				Help:      "Subscription activations including renewals",
			},
			[]string{"provider", "plan_type"},
		),
		SubscriptionsDeactivated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "subscriptions_deactivated_total",
				Help:      "Subscriptions deactivated by provider cancellation",
			},
			[]string{"provider"},
		),
		PaymentMethodsSaved: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_methods_saved_total",
				Help:      "Payment method references saved",
			},
			[]string{"provider"},
		),
		PaymentMethodsRemoved: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_methods_removed_total",
				Help:      "Payment method references deactivated",
			},
			[]string{"provider"},
		),
		RevenueCollected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "revenue_collected_cents_total",
				Help:      "Settled revenue in integer cents",
			},
			[]string{"provider", "currency"},
		),
		SettlementWarnings: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "settlement_warnings_total",
				Help:      "Post-payment steps that failed and were logged instead of surfaced",
			},
			[]string{"provider", "step"},
		),
		ProviderAPILatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "provider_api_duration_seconds",
				Help:      "Latency of outbound payment provider calls",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"provider", "operation"},
		),
	}

	return m
}
