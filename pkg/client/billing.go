package client

import (
	"context"
	"net/http"
	"net/url"
)

// CheckoutRequest starts a hosted checkout for one price
type CheckoutRequest struct {
	PriceID       string `json:"priceId"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	// IdempotencyKey is sent as the Idempotency-Key header
	IdempotencyKey string `json:"-"`
}

// CheckoutSession is the provider session the browser is sent to
type CheckoutSession struct {
	SessionID string `json:"sessionId" yaml:"sessionId"`
	URL       string `json:"url" yaml:"url"`
}

// Subscription is the entitlement view of the signed-in user
type Subscription struct {
	Plan            string  `json:"plan" yaml:"plan"`
	Status          string  `json:"status" yaml:"status"`
	Price           string  `json:"price" yaml:"price"`
	BillingPeriod   string  `json:"billingPeriod" yaml:"billingPeriod"`
	NextBillingDate string  `json:"nextBillingDate" yaml:"nextBillingDate"`
	CustomerID      *string `json:"customerId" yaml:"customerId"`
	SubscriptionID  *string `json:"subscriptionId" yaml:"subscriptionId"`
}

// SubscriptionStatus is returned by the status endpoint. Subscription is nil
// when the user has never subscribed.
type SubscriptionStatus struct {
	Subscription *Subscription `json:"subscription" yaml:"subscription"`
	Message      string        `json:"message,omitempty" yaml:"message,omitempty"`
}

// CreateCheckout starts a hosted checkout session
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	var header http.Header
	if req.IdempotencyKey != "" {
		header = http.Header{"Idempotency-Key": []string{req.IdempotencyKey}}
	}

	var session CheckoutSession
	if err := c.doRequest(ctx, "POST", "/api/checkout", header, req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// SubscriptionStatus reads the signed-in user's entitlement. checkoutSessionID
// is the session_id from the checkout return URL and may be empty.
func (c *Client) SubscriptionStatus(ctx context.Context, checkoutSessionID string) (*SubscriptionStatus, error) {
	path := "/api/subscription-status"
	if checkoutSessionID != "" {
		path += "?" + url.Values{"session_id": []string{checkoutSessionID}}.Encode()
	}

	var status SubscriptionStatus
	if err := c.doRequest(ctx, "GET", path, nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
