// Package entitlement defines the display-ready view of a user's subscription.
package entitlement

import (
	"time"

	"github.com/bizdesk/bizdesk/internal/domain/profile"
)

// View is derived from a profile on every read. It is never cached or
// written back.
type View struct {
	Plan            string  `json:"plan"`
	Status          string  `json:"status"`
	Price           string  `json:"price"`
	BillingPeriod   string  `json:"billingPeriod"`
	NextBillingDate string  `json:"nextBillingDate"`
	CustomerRef     *string `json:"customerId"`
	SubscriptionRef *string `json:"subscriptionId"`
}

// StatusResult is the outcome of a status read
type StatusResult struct {
	Subscription *View  `json:"subscription"`
	Message      string `json:"message,omitempty"`
}

// PlanPricing is a row of the local display price table
type PlanPricing struct {
	Price         string
	BillingPeriod string
}

// Catalog is the fixed local price table keyed by plan label. Displayed prices
// may drift from the provider's price objects.
var Catalog = map[profile.PlanType]PlanPricing{
	profile.PlanMonthly: {Price: "$29", BillingPeriod: "month"},
	profile.PlanAnnual:  {Price: "$290", BillingPeriod: "year"},
}

// Messages returned alongside status results
const (
	MessageNoSubscription = "No active subscription found."
	MessageActivated      = "Your subscription has been activated successfully!"
	MessageProcessing     = "Thanks for subscribing! Your payment is still being confirmed."
)

// DateLayout is the format of NextBillingDate
const DateLayout = "2006-01-02"

// estimatedPeriod is used when the provider has not reported a period end
const estimatedPeriod = 30 * 24 * time.Hour

// FromProfile builds the view for a profile that holds a subscription
// reference. now is only consulted when the profile has no known period end.
func FromProfile(p *profile.Profile, now time.Time) *View {
	plan := p.PlanType
	if plan == "" {
		plan = profile.PlanMonthly
	}
	status := p.Status
	if status == "" {
		status = profile.StatusInactive
	}

	next := now.UTC().Add(estimatedPeriod)
	if p.CurrentPeriodEnd != nil {
		next = p.CurrentPeriodEnd.UTC()
	}

	pricing, ok := Catalog[plan]
	if !ok {
		pricing = Catalog[profile.PlanMonthly]
	}
	return &View{
		Plan:            string(plan),
		Status:          status,
		Price:           pricing.Price,
		BillingPeriod:   pricing.BillingPeriod,
		NextBillingDate: next.Format(DateLayout),
		CustomerRef:     p.CustomerRef,
		SubscriptionRef: p.SubscriptionRef,
	}
}

// IsEntitled reports whether status grants access to paid features
func IsEntitled(status string) bool {
	return status == profile.StatusActive || status == profile.StatusTrialing
}
