package profile

import "time"

// PlanType is the plan a profile is billed on
type PlanType string

// Plan types
const (
	PlanMonthly PlanType = "Monthly"
	PlanAnnual  PlanType = "Annual"
)

// IsValid reports whether p is a known plan type
func (p PlanType) IsValid() bool {
	return p == PlanMonthly || p == PlanAnnual
}

// Subscription statuses as reported by the billing provider
const (
	StatusInactive = "inactive"
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
)

// Profile is the per-user billing record
type Profile struct {
	ID               string     `json:"id"`
	PlanType         PlanType   `json:"plan_type,omitempty"`
	CustomerRef      *string    `json:"customer_ref,omitempty"`
	SubscriptionRef  *string    `json:"subscription_ref,omitempty"`
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	BillingSyncedAt  *time.Time `json:"billing_synced_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	// RefreshAttemptedAt is set when a periodic refresh failed and cleared by
	// the next successful billing update
	RefreshAttemptedAt *time.Time `json:"refresh_attempted_at,omitempty"`
}

// HasSubscription reports whether the profile carries a subscription reference
func (p *Profile) HasSubscription() bool {
	return p.SubscriptionRef != nil && *p.SubscriptionRef != ""
}

// BillingUpdate is a verified change coming from the billing provider.
// Nil fields are left untouched; ClearSubscription removes the subscription
// reference.
type BillingUpdate struct {
	PlanType          *PlanType
	CustomerRef       *string
	SubscriptionRef   *string
	ClearSubscription bool
	Status            *string
	CurrentPeriodEnd  *time.Time
	SyncedAt          time.Time
}
