package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bizdesk/bizdesk/internal/api/handlers"
	"github.com/bizdesk/bizdesk/internal/api/middleware"
	"github.com/bizdesk/bizdesk/internal/api/router"
	"github.com/bizdesk/bizdesk/internal/auth"
	"github.com/bizdesk/bizdesk/internal/cache"
	"github.com/bizdesk/bizdesk/internal/config"
	"github.com/bizdesk/bizdesk/internal/gate"
	"github.com/bizdesk/bizdesk/internal/pkg/logger"
	"github.com/bizdesk/bizdesk/internal/providers"
	"github.com/bizdesk/bizdesk/internal/repository/postgres"
	"github.com/bizdesk/bizdesk/internal/services"
	"github.com/bizdesk/bizdesk/internal/worker"
	"github.com/bizdesk/bizdesk/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logger.Init(log)

	if err := run(cfg, log); err != nil {
		log.FatalWithErr(err, "Server exited with error")
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := postgres.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	applied, err := postgres.RunMigrations(db, migrations.GetFS())
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	for _, name := range applied {
		log.With("migration", name).Info("Applied migration")
	}

	profiles := postgres.NewProfileRepository(db)
	events := postgres.NewBillingEventRepository(db)

	// Checkout guard: Redis when enabled, process-local otherwise
	var guard cache.Guard = cache.NewMemoryGuard()
	var redisPinger handlers.Pinger
	if cfg.Redis.Enabled {
		rc, err := cache.New(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rc.Close()
		guard = rc
		redisPinger = rc
		log.With("addr", cfg.Redis.Addr()).Info("Connected to Redis")
	}

	stripe, err := providers.NewStripeProvider(cfg.Billing.StripeAPIKey, cfg.Billing.StripeWebhookSecret)
	if err != nil {
		return fmt.Errorf("failed to configure billing provider: %w", err)
	}
	if cfg.Billing.StripeWebhookSecret == "" {
		log.Warn("STRIPE_WEBHOOK_SECRET is not set, webhook deliveries will be rejected")
	}

	// Services
	checkoutService := services.NewCheckoutService(stripe, guard, cfg.Billing, log)
	subscriptionService := services.NewSubscriptionService(profiles, log)
	billingEventService := services.NewBillingEventService(stripe, profiles, events, cfg.Billing.PricePlans, log)

	h := &router.Handlers{
		Health:       handlers.NewHealthHandler(db, redisPinger, log),
		Checkout:     handlers.NewCheckoutHandler(checkoutService, log),
		Subscription: handlers.NewSubscriptionHandler(subscriptionService, log),
		Webhook:      handlers.NewWebhookHandler(billingEventService, log),
	}

	table, err := gate.NewTable(cfg.Gate.AuthPrefixes, cfg.Gate.ProtectedPrefixes)
	if err != nil {
		return fmt.Errorf("invalid gate configuration: %w", err)
	}

	deps := router.Deps{
		Sessions: auth.NewSessionProvider(cfg.Auth),
		Gate:     table,
	}
	if cfg.Server.RateLimitRPS > 0 {
		deps.RateLimiter = middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
		deps.RateLimiter.StartCleanup(time.Minute, ctx.Done())
	}

	// Background entitlement refresh
	if cfg.Reconcile.Enabled {
		refresher := worker.NewEntitlementRefresher(profiles, stripe, cfg.Reconcile, cfg.Billing.PricePlans, cfg.Billing.CallTimeout, log)
		if err := refresher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start entitlement refresher: %w", err)
		}
		defer refresher.Stop()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.New(cfg, log, h, deps),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       2 * cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithFields(map[string]interface{}{
			"addr":        srv.Addr,
			"environment": cfg.Server.Environment,
		}).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	srv.SetKeepAlivesEnabled(false)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Info("Server stopped gracefully")
	return nil
}
