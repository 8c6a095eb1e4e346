package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/watchhub/payments/internal"
	"github.com/watchhub/payments/internal/billing"
	"github.com/watchhub/payments/internal/domain"
	"github.com/watchhub/payments/internal/events"
	"github.com/watchhub/payments/internal/handler"
	"github.com/watchhub/payments/internal/handler/webhook"
	"github.com/watchhub/payments/internal/middleware"
	"github.com/watchhub/payments/internal/postgres"
	"github.com/watchhub/payments/internal/router"
	"github.com/watchhub/payments/internal/routes"
	"github.com/watchhub/payments/internal/service"
	"github.com/watchhub/payments/internal/telemetry"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize Sentry error tracking
	sentryCleanup, err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:         cfg.Sentry.DSN,
		Enabled:     cfg.Sentry.Enabled,
		Environment: cfg.Sentry.Environment,
		Release:     cfg.Sentry.Release,
		SampleRate:  cfg.Sentry.SampleRate,
		Debug:       cfg.Sentry.Debug,
	}, logger)
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}
	defer sentryCleanup()

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("Database connection established")

	// Run migrations
	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database migrations completed successfully")

	// Initialize pgx connection pool for application queries
	pool, err := postgres.NewPool(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	// Initialize stores
	accountStore := postgres.NewAccountStore(pool)
	planStore := postgres.NewPlanStore(pool)
	orderStore := postgres.NewOrderStore(pool)
	subscriptionStore := postgres.NewSubscriptionStore(pool)
	paymentMethodStore := postgres.NewPaymentMethodStore(pool)
	webhookEventStore := postgres.NewWebhookEventStore(pool)

	// Initialize billing providers
	logger.Info("Initializing Stripe billing provider...")
	stripeConfig := billing.StripeConfig{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	}
	stripeProvider, err := billing.NewStripeProvider(stripeConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize Stripe provider: %w", err)
	}
	logger.Info("Stripe billing provider initialized", "test_mode", stripeConfig.IsTestMode())

	logger.Info("Initializing PayPal billing provider...")
	paypalProvider, err := billing.NewPayPalProvider(billing.PayPalConfig{
		ClientID: cfg.PayPal.ClientID,
		Secret:   cfg.PayPal.Secret,
		Live:     cfg.PayPal.Live,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize PayPal provider: %w", err)
	}
	logger.Info("PayPal billing provider initialized", "live", cfg.PayPal.Live)

	providers := map[domain.Provider]billing.Provider{
		domain.ProviderStripe: stripeProvider,
		domain.ProviderPayPal: paypalProvider,
	}

	// PayPal has no reusable customer concept in this flow, so only
	// Stripe gets a customer resolver.
	resolvers := map[domain.Provider]service.CustomerResolver{
		domain.ProviderStripe: service.NewCustomerResolver(accountStore, stripeProvider, logger),
	}

	// Settlement event publisher
	var publisher events.Publisher
	if cfg.NATS.Enabled {
		logger.Info("Connecting to NATS...", "url", cfg.NATS.URL)
		natsPublisher, err := events.NewNATSPublisher(cfg.NATS.URL, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsPublisher.Close()
		publisher = natsPublisher
	} else {
		publisher = events.NoopPublisher{}
	}

	// Business metrics
	businessMetrics := telemetry.NewBusinessMetrics("watchhub")

	// Initialize services
	reconciler := service.NewReconciler(
		orderStore,
		accountStore,
		subscriptionStore,
		paymentMethodStore,
		webhookEventStore,
		publisher,
		businessMetrics,
		logger,
	)

	checkoutService := service.NewCheckoutService(
		planStore,
		orderStore,
		providers,
		resolvers,
		cfg.BaseURL,
		businessMetrics,
		logger,
	)

	captureService := service.NewCaptureService(orderStore, paypalProvider, reconciler, businessMetrics, logger)
	paymentMethodService := service.NewPaymentMethodService(paymentMethodStore, businessMetrics, logger)
	planService := service.NewPlanService(planStore, subscriptionStore)

	// Build route dependencies
	apiDeps := routes.APIDeps{
		CheckoutHandler:      handler.NewCheckoutHandler(checkoutService, logger),
		CaptureHandler:       handler.NewCaptureHandler(captureService, logger),
		PaymentMethodHandler: handler.NewPaymentMethodHandler(paymentMethodService, logger),
		SubscriptionHandler:  handler.NewSubscriptionHandler(planService, logger),
	}

	webhookDeps := routes.WebhookDeps{
		StripeHandler: webhook.NewStripeHandler(stripeProvider, reconciler, businessMetrics, logger),
	}

	// Initialize middleware
	httpMetrics := middleware.NewMetrics("watchhub")

	securityConfig := middleware.DefaultSecurityHeadersConfig()
	if cfg.Env == "dev" {
		securityConfig.HSTSMaxAge = 0
	}

	defaultRateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer defaultRateLimiter.Stop()

	// Create router and register routes
	r := router.New(
		router.Recovery(logger),
		router.CORS(cfg.CORSOrigins),
		middleware.RequestID,
		middleware.WithClientIP(),
		httpMetrics.Middleware,
		middleware.SecurityHeaders(securityConfig),
		middleware.MaxBodySize(middleware.DefaultMaxBodySize),
		middleware.Timeout(middleware.DefaultTimeout),
		defaultRateLimiter.Middleware,
		router.Logger(logger),
		middleware.WithIdentity(cfg.JWTSecret),
		middleware.WithRequestLogger(logger),
	)

	// Metrics endpoint (protect via firewall in production)
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		httpMetrics.Handler().ServeHTTP(w, req)
	})

	// Health check endpoint
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := pool.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	routes.RegisterAPIRoutes(r, apiDeps)
	routes.RegisterWebhookRoutes(r, webhookDeps)

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("Starting payment server", "address", addr, "env", cfg.Env)

	if err := http.ListenAndServe(addr, r); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
