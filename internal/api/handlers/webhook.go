package handlers

import (
	"io"
	"net/http"

	"github.com/bizdesk/bizdesk/internal/api/dto"
	"github.com/bizdesk/bizdesk/internal/pkg/errors"
	"github.com/bizdesk/bizdesk/internal/pkg/logger"
	"github.com/bizdesk/bizdesk/internal/services"
)

// StripeSignatureHeader carries the webhook signature
const StripeSignatureHeader = "Stripe-Signature"

// maxWebhookBytes bounds webhook payloads
const maxWebhookBytes = 512 << 10

// WebhookHandler receives billing provider events
type WebhookHandler struct {
	service *services.BillingEventService
	logger  *logger.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(service *services.BillingEventService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, logger: log}
}

// Stripe verifies and applies a Stripe event
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		respondError(w, r, h.logger, errors.Wrap(err, errors.ErrCodeBadRequest, "Invalid webhook payload", http.StatusBadRequest))
		return
	}

	ev, err := h.service.HandleWebhook(r.Context(), payload, r.Header.Get(StripeSignatureHeader))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.WebhookAck{Received: true, EventID: ev.ID})
}
