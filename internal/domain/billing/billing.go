// Package billing holds the contract with the external billing provider.
package billing

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidSignature is returned when a webhook payload fails verification
var ErrInvalidSignature = errors.New("billing event signature verification failed")

// CheckoutMode is the kind of hosted checkout session
type CheckoutMode string

// ModeSubscription is the only mode the checkout initiator uses
const ModeSubscription CheckoutMode = "subscription"

// CheckoutParams describes a hosted checkout session request
type CheckoutParams struct {
	PriceID       string
	Quantity      int64
	Mode          CheckoutMode
	CustomerEmail string
	// ClientReference ties the session to a local user, when known
	ClientReference string
	SuccessURL      string
	CancelURL       string
	IdempotencyKey  string
}

// CheckoutSession is the provider's answer to a checkout request. It is not
// persisted locally.
type CheckoutSession struct {
	ID      string       `json:"id"`
	URL     string       `json:"url"`
	PriceID string       `json:"price_id"`
	Mode    CheckoutMode `json:"mode"`
}

// EventType is a normalized billing event type
type EventType string

// Normalized event types
const (
	EventCheckoutCompleted     EventType = "checkout_completed"
	EventSubscriptionCreated   EventType = "subscription_created"
	EventSubscriptionUpdated   EventType = "subscription_updated"
	EventSubscriptionCancelled EventType = "subscription_cancelled"
	EventIgnored               EventType = "ignored"
)

// Event is a verified billing event
type Event struct {
	ID               string
	Type             EventType
	ProviderType     string
	ClientReference  string
	CustomerRef      string
	SubscriptionRef  string
	PriceID          string
	Status           string
	CurrentPeriodEnd *time.Time
}

// Subscription is the provider's live view of a subscription
type Subscription struct {
	ID               string
	CustomerRef      string
	PriceID          string
	Status           string
	CurrentPeriodEnd *time.Time
}

// Provider is the external billing provider
type Provider interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	// ParseEvent verifies the signature and normalizes the payload
	ParseEvent(payload []byte, signature string) (*Event, error)
	GetSubscription(ctx context.Context, subscriptionRef string) (*Subscription, error)
}

// EventLog remembers which provider events were applied
type EventLog interface {
	// MarkProcessed reports whether eventID is new
	MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error)
	// Forget drops eventID so a redelivery is applied again
	Forget(ctx context.Context, eventID string) error
}
