package handlers

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/bizdesk/bizdesk/internal/api/dto"
	"github.com/bizdesk/bizdesk/internal/api/middleware"
	"github.com/bizdesk/bizdesk/internal/pkg/errors"
	"github.com/bizdesk/bizdesk/internal/pkg/logger"
	"github.com/bizdesk/bizdesk/internal/services"
)

// IdempotencyKeyHeader lets clients make checkout retries safe
const IdempotencyKeyHeader = "Idempotency-Key"

// CheckoutHandler starts hosted checkout sessions
type CheckoutHandler struct {
	service *services.CheckoutService
	logger  *logger.Logger
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(service *services.CheckoutService, log *logger.Logger) *CheckoutHandler {
	return &CheckoutHandler{service: service, logger: log}
}

// Create starts a checkout for a price. A session is optional; when present
// the checkout is tied to the signed-in user.
func (h *CheckoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CheckoutRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil && !stderrors.Is(err, io.EOF) {
		respondError(w, r, h.logger, errors.Wrap(err, errors.ErrCodeBadRequest, "Invalid request body", http.StatusBadRequest))
		return
	}

	sess, _ := middleware.GetSession(r)
	cs, err := h.service.CreateSession(r.Context(), sess, services.CheckoutInput{
		PriceID:        req.PriceID,
		CustomerEmail:  req.CustomerEmail,
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.CheckoutResponse{
		SessionID: cs.ID,
		URL:       cs.URL,
	})
}
