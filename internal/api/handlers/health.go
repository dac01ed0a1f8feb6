package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/bizdesk/bizdesk/internal/pkg/logger"
	"github.com/bizdesk/bizdesk/internal/pkg/utils"
)

// Pinger is a dependency that can report its health
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	db     *sql.DB
	cache  Pinger
	logger *logger.Logger
}

// NewHealthHandler creates a new health handler. cache may be nil.
func NewHealthHandler(db *sql.DB, cache Pinger, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		cache:  cache,
		logger: log,
	}
}

// Healthz handles liveness probe
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Readyz reports whether the profile store and checkout guard are reachable
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.ErrorWithErr(err, "Database ping failed")
		utils.WriteErrorMessage(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Database connection failed")
		return
	}

	status := map[string]string{
		"status":   "ready",
		"database": "connected",
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			h.logger.ErrorWithErr(err, "Redis ping failed")
			utils.WriteErrorMessage(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Redis connection failed")
			return
		}
		status["redis"] = "connected"
	}

	respondJSON(w, http.StatusOK, status)
}
