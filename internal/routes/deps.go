package routes

import (
	"github.com/watchhub/payments/internal/handler"
	"github.com/watchhub/payments/internal/handler/webhook"
)

// APIDeps contains dependencies for the payment API routes.
type APIDeps struct {
	CheckoutHandler      *handler.CheckoutHandler
	CaptureHandler       *handler.CaptureHandler
	PaymentMethodHandler *handler.PaymentMethodHandler
	SubscriptionHandler  *handler.SubscriptionHandler
}

// WebhookDeps contains dependencies for webhook routes.
type WebhookDeps struct {
	StripeHandler *webhook.StripeHandler
}
