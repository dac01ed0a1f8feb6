package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bizdesk",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bizdesk",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bizdesk",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served",
		},
	)

	// Access gate
	gateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bizdesk",
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Access gate decisions by route class and outcome",
		},
		[]string{"class", "outcome"},
	)

	gateProviderErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bizdesk",
			Subsystem: "gate",
			Name:      "identity_errors_total",
			Help:      "Identity provider failures during gating",
		},
	)

	// Billing
	checkoutSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bizdesk",
			Subsystem: "billing",
			Name:      "checkout_sessions_total",
			Help:      "Checkout session attempts by outcome",
		},
		[]string{"outcome"},
	)

	providerCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bizdesk",
			Subsystem: "billing",
			Name:      "provider_call_duration_seconds",
			Help:      "Billing provider call duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "status"},
	)

	billingEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bizdesk",
			Subsystem: "billing",
			Name:      "events_total",
			Help:      "Verified billing events by type and result",
		},
		[]string{"type", "result"},
	)

	// Entitlement
	statusReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bizdesk",
			Subsystem: "entitlement",
			Name:      "status_reads_total",
			Help:      "Subscription status reads by outcome",
		},
		[]string{"outcome"},
	)

	profilesRefreshedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bizdesk",
			Subsystem: "entitlement",
			Name:      "profiles_refreshed_total",
			Help:      "Profiles refreshed from the billing provider by result",
		},
		[]string{"result"},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bizdesk",
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "table"},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns a middleware that records Prometheus metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}

		status := strconv.Itoa(wrapped.statusCode)

		httpRequestsTotal.WithLabelValues(r.Method, routePattern, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, routePattern, status).Observe(duration)
	})
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordGateDecision records an access gate decision
func RecordGateDecision(class, outcome string) {
	gateDecisionsTotal.WithLabelValues(class, outcome).Inc()
}

// RecordGateProviderError records an identity provider failure during gating
func RecordGateProviderError() {
	gateProviderErrors.Inc()
}

// RecordCheckout records a checkout attempt outcome
func RecordCheckout(outcome string) {
	checkoutSessionsTotal.WithLabelValues(outcome).Inc()
}

// RecordProviderCall records a billing provider call
func RecordProviderCall(operation string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	providerCallDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// RecordBillingEvent records a verified billing event
func RecordBillingEvent(eventType, result string) {
	billingEventsTotal.WithLabelValues(eventType, result).Inc()
}

// RecordStatusRead records a subscription status read outcome
func RecordStatusRead(outcome string) {
	statusReadsTotal.WithLabelValues(outcome).Inc()
}

// RecordProfileRefresh records a periodic profile refresh result
func RecordProfileRefresh(result string) {
	profilesRefreshedTotal.WithLabelValues(result).Inc()
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation, table string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}
