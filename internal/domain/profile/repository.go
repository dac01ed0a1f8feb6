package profile

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no profile exists for the lookup key
var ErrNotFound = errors.New("profile not found")

// Reader is the read-only view of the profile store used by the entitlement core
type Reader interface {
	// GetByUserID returns ErrNotFound when the user has no profile
	GetByUserID(ctx context.Context, userID string) (*Profile, error)
}

// Writer is used only by verified billing-event reconciliation
type Writer interface {
	GetByCustomerRef(ctx context.Context, customerRef string) (*Profile, error)
	ApplyBilling(ctx context.Context, userID string, update BillingUpdate) error
	// ListStale returns subscribed profiles whose billing fields were last
	// synced before cutoff, skipping profiles whose refresh failed after cutoff
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*Profile, error)
	// MarkRefreshAttempt records a failed refresh so the profile yields its
	// place in the next batches
	MarkRefreshAttempt(ctx context.Context, userID string, at time.Time) error
}

// Repository is the full profile store
type Repository interface {
	Reader
	Writer
	Create(ctx context.Context, p *Profile) error
}
