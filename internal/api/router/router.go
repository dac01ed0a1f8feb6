package router

import (
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/bizdesk/bizdesk/internal/api/handlers"
	"github.com/bizdesk/bizdesk/internal/api/middleware"
	"github.com/bizdesk/bizdesk/internal/config"
	"github.com/bizdesk/bizdesk/internal/domain/session"
	"github.com/bizdesk/bizdesk/internal/gate"
	"github.com/bizdesk/bizdesk/internal/pkg/logger"
	"github.com/bizdesk/bizdesk/internal/pkg/metrics"
)

// Handlers groups the HTTP handlers
type Handlers struct {
	Health       *handlers.HealthHandler
	Checkout     *handlers.CheckoutHandler
	Subscription *handlers.SubscriptionHandler
	Webhook      *handlers.WebhookHandler
}

// Deps are the collaborators the middleware stack needs
type Deps struct {
	Sessions    session.Provider
	Gate        *gate.Table
	RateLimiter *middleware.RateLimiter
}

// New builds the HTTP handler. The access gate runs for every request
// before routing.
func New(cfg *config.Config, log *logger.Logger, h *Handlers, deps Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(metrics.Middleware)
	r.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	r.Use(middleware.AccessGate(deps.Sessions, deps.Gate, cfg.Gate, log))

	// Health checks
	r.Get("/health", h.Health.Healthz)
	r.Get("/healthz", h.Health.Healthz)
	r.Get("/readyz", h.Health.Readyz)
	r.Handle("/metrics", metrics.Handler())

	// Signed provider callbacks, outside CORS and per-client limits
	r.Post("/api/webhooks/stripe", h.Webhook.Stripe)

	r.Group(func(r chi.Router) {
		r.Use(middleware.DefaultCORS(cfg.Server.FrontendURL))
		if deps.RateLimiter != nil {
			r.Use(middleware.RateLimit(deps.RateLimiter))
		}

		r.Post("/api/checkout", h.Checkout.Create)
		r.Get("/api/subscription-status", h.Subscription.Status)

		// Unprefixed paths used by the marketing pages
		r.Post("/checkout", h.Checkout.Create)
		r.Get("/subscription-status", h.Subscription.Status)

		// Preflight for the routes above
		preflight := func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}
		r.Options("/api/*", preflight)
		r.Options("/checkout", preflight)
		r.Options("/subscription-status", preflight)
	})

	if cfg.Server.StaticDir != "" {
		r.Handle("/*", pages(cfg.Server.StaticDir))
	}

	return r
}

// pages serves the built frontend. Paths without a matching file fall back
// to index.html so client-side routes such as /dashboard/sales load.
func pages(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if info, err := os.Stat(name); err != nil || info.IsDir() && !hasIndex(name) {
			http.ServeFile(w, r, index)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func hasIndex(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "index.html"))
	return err == nil
}
