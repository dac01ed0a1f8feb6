package handlers

import (
	"net/http"

	"github.com/bizdesk/bizdesk/internal/api/dto"
	"github.com/bizdesk/bizdesk/internal/api/middleware"
	"github.com/bizdesk/bizdesk/internal/pkg/logger"
	"github.com/bizdesk/bizdesk/internal/services"
)

// CheckoutSessionParam is the query parameter the checkout success redirect
// carries
const CheckoutSessionParam = "session_id"

// SubscriptionHandler serves the signed-in user's subscription status
type SubscriptionHandler struct {
	service *services.SubscriptionService
	logger  *logger.Logger
}

// NewSubscriptionHandler creates a new subscription status handler
func NewSubscriptionHandler(service *services.SubscriptionService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{service: service, logger: log}
}

// Status returns the entitlement view
func (h *SubscriptionHandler) Status(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.GetSession(r)

	result, err := h.service.Status(r.Context(), sess, r.URL.Query().Get(CheckoutSessionParam))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	respondJSON(w, http.StatusOK, dto.SubscriptionStatusResponse{
		Subscription: result.Subscription,
		Message:      result.Message,
	})
}
