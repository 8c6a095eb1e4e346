package routes

import (
	"github.com/watchhub/payments/internal/router"
)

// RegisterWebhookRoutes registers all webhook routes.
//
// Note: webhook routes do NOT have authentication middleware. Each
// webhook handler verifies the request signature itself (Stripe
// signature verification) before trusting the payload.
func RegisterWebhookRoutes(r *router.Router, deps WebhookDeps) {
	r.Post("/webhooks/stripe", deps.StripeHandler.HandleWebhook)
}
