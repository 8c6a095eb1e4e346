package routes

import (
	"github.com/watchhub/payments/internal/middleware"
	"github.com/watchhub/payments/internal/router"
)

// RegisterAPIRoutes registers the payment API.
//
// Checkout creation and capture accept both authenticated and guest
// callers; the services associate the order with an account when one is
// present. Payment methods and subscription state require
// authentication.
func RegisterAPIRoutes(r *router.Router, deps APIDeps) {
	// Public catalog
	r.Get("/api/plans", deps.SubscriptionHandler.ListPlans)

	// Checkout initiation, rate limited to slow card-testing abuse
	checkoutLimit := middleware.RateLimit(middleware.StrictRateLimiterConfig())
	r.Post("/api/stripe/checkout", deps.CheckoutHandler.CreateStripeCheckout, checkoutLimit)
	r.Post("/api/paypal/orders", deps.CheckoutHandler.CreatePayPalOrder, checkoutLimit)
	r.Post("/api/paypal/capture", deps.CaptureHandler.CapturePayPalOrder, checkoutLimit)

	// Authenticated account state
	authed := r.Group(middleware.RequireAuth)
	authed.Get("/api/subscription", deps.SubscriptionHandler.GetSubscription)
	authed.Get("/api/payment-methods", deps.PaymentMethodHandler.List)
	authed.Post("/api/payment-methods", deps.PaymentMethodHandler.Save)
	authed.Delete("/api/payment-methods/{id}", deps.PaymentMethodHandler.Remove)
}
