package dto

import "github.com/bizdesk/bizdesk/internal/domain/entitlement"

// CheckoutRequest starts a hosted checkout
type CheckoutRequest struct {
	PriceID       string `json:"priceId"`
	CustomerEmail string `json:"customerEmail,omitempty"`
}

// CheckoutResponse carries the provider's session id and redirect URL
type CheckoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// SubscriptionStatusResponse is the entitlement view of the signed-in user.
// Subscription is null when the user has never subscribed.
type SubscriptionStatusResponse struct {
	Subscription *entitlement.View `json:"subscription"`
	Message      string            `json:"message,omitempty"`
}

// WebhookAck acknowledges a verified billing event
type WebhookAck struct {
	Received bool   `json:"received"`
	EventID  string `json:"eventId,omitempty"`
}
