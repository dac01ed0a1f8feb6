package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/bizdesk/bizdesk/internal/domain/billing"
	"github.com/bizdesk/bizdesk/internal/pkg/metrics"
)

// Metadata keys attached to checkout sessions and subscriptions
const (
	metaUserID  = "user_id"
	metaPriceID = "price_id"
)

// StripeProvider implements billing.Provider on Stripe Checkout
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

// NewStripeProvider creates a Stripe billing provider
func NewStripeProvider(apiKey, webhookSecret string) (*StripeProvider, error) {
	if apiKey == "" {
		return nil, errors.New("stripe API key is required")
	}
	return &StripeProvider{
		api:           client.New(apiKey, nil),
		webhookSecret: webhookSecret,
	}, nil
}

// NewStripeProviderWithBackends lets callers point the client at another
// API endpoint
func NewStripeProviderWithBackends(apiKey, webhookSecret string, backends *stripe.Backends) *StripeProvider {
	return &StripeProvider{
		api:           client.New(apiKey, backends),
		webhookSecret: webhookSecret,
	}
}

// CreateCheckoutSession creates a hosted subscription checkout session
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, in billing.CheckoutParams) (*billing.CheckoutSession, error) {
	quantity := in.Quantity
	if quantity == 0 {
		quantity = 1
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(quantity),
			},
		},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
	}
	params.Context = ctx
	params.AddMetadata(metaPriceID, in.PriceID)

	if in.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(in.CustomerEmail)
	}
	if in.ClientReference != "" {
		params.ClientReferenceID = stripe.String(in.ClientReference)
		params.AddMetadata(metaUserID, in.ClientReference)
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{metaUserID: in.ClientReference},
		}
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	start := time.Now()
	s, err := p.api.CheckoutSessions.New(params)
	metrics.RecordProviderCall("checkout_session_create", err, time.Since(start))
	if err != nil {
		return nil, providerError(err)
	}

	return &billing.CheckoutSession{
		ID:      s.ID,
		URL:     s.URL,
		PriceID: in.PriceID,
		Mode:    billing.ModeSubscription,
	}, nil
}

// GetSubscription fetches the live subscription object
func (p *StripeProvider) GetSubscription(ctx context.Context, subscriptionRef string) (*billing.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	start := time.Now()
	sub, err := p.api.Subscriptions.Get(subscriptionRef, params)
	metrics.RecordProviderCall("subscription_get", err, time.Since(start))
	if err != nil {
		return nil, providerError(err)
	}

	return &billing.Subscription{
		ID:               sub.ID,
		CustomerRef:      customerID(sub.Customer),
		PriceID:          firstPriceID(sub),
		Status:           string(sub.Status),
		CurrentPeriodEnd: unixTime(sub.CurrentPeriodEnd),
	}, nil
}

// ParseEvent verifies the Stripe-Signature header and normalizes the event
func (p *StripeProvider) ParseEvent(payload []byte, signature string) (*billing.Event, error) {
	if p.webhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", billing.ErrInvalidSignature)
	}

	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrInvalidSignature, err)
	}

	return normalizeEvent(ev)
}

func normalizeEvent(ev stripe.Event) (*billing.Event, error) {
	out := &billing.Event{
		ID:           ev.ID,
		ProviderType: string(ev.Type),
		Type:         billing.EventIgnored,
	}
	if ev.Data == nil {
		return out, nil
	}

	switch ev.Type {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		if cs.Mode != stripe.CheckoutSessionModeSubscription {
			return out, nil
		}
		out.Type = billing.EventCheckoutCompleted
		out.ClientReference = cs.ClientReferenceID
		if out.ClientReference == "" {
			out.ClientReference = cs.Metadata[metaUserID]
		}
		out.CustomerRef = customerID(cs.Customer)
		if cs.Subscription != nil {
			out.SubscriptionRef = cs.Subscription.ID
		}
		out.PriceID = cs.Metadata[metaPriceID]
		out.Status = "active"
		if cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			out.Status = "incomplete"
		}

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		switch ev.Type {
		case "customer.subscription.created":
			out.Type = billing.EventSubscriptionCreated
		case "customer.subscription.updated":
			out.Type = billing.EventSubscriptionUpdated
		default:
			out.Type = billing.EventSubscriptionCancelled
		}
		out.ClientReference = sub.Metadata[metaUserID]
		out.CustomerRef = customerID(sub.Customer)
		out.SubscriptionRef = sub.ID
		out.PriceID = firstPriceID(&sub)
		out.Status = string(sub.Status)
		out.CurrentPeriodEnd = unixTime(sub.CurrentPeriodEnd)
	}

	return out, nil
}

// providerError keeps Stripe's human readable message
func providerError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.Msg != "" {
		return errors.New(se.Msg)
	}
	return err
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func firstPriceID(sub *stripe.Subscription) string {
	if sub.Items == nil {
		return ""
	}
	for _, item := range sub.Items.Data {
		if item != nil && item.Price != nil {
			return item.Price.ID
		}
	}
	return ""
}

func unixTime(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
