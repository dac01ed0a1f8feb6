package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/bizdesk/bizdesk/internal/domain/profile"
	"github.com/bizdesk/bizdesk/internal/pkg/errors"
	"github.com/bizdesk/bizdesk/internal/pkg/metrics"
)

const profileColumns = `id, plan_type, customer_ref, subscription_ref, status,
	current_period_end, billing_synced_at, refresh_attempted_at, created_at, updated_at`

// ProfileRepository implements profile.Repository
type ProfileRepository struct {
	db *sql.DB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create inserts a profile. Profiles are normally created at signup by the
// identity side; this exists for seeding and tests.
func (r *ProfileRepository) Create(ctx context.Context, p *profile.Profile) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = profile.StatusInactive
	}

	query := `
		INSERT INTO profiles (id, plan_type, customer_ref, subscription_ref, status,
			current_period_end, billing_synced_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		p.ID, nullPlan(p.PlanType), p.CustomerRef, p.SubscriptionRef, p.Status,
		unixOrNil(p.CurrentPeriodEnd), unixOrNil(p.BillingSyncedAt), now.Unix(), now.Unix(),
	)
	metrics.RecordDBQuery("insert", "profiles", time.Since(start))
	if err != nil {
		return errors.DatabaseError("Failed to create profile", err)
	}
	return nil
}

// GetByUserID retrieves the profile keyed by user id
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*profile.Profile, error) {
	start := time.Now()
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, userID)
	p, err := scanProfile(row)
	metrics.RecordDBQuery("select", "profiles", time.Since(start))
	return p, err
}

// GetByCustomerRef retrieves the profile holding a billing customer reference
func (r *ProfileRepository) GetByCustomerRef(ctx context.Context, customerRef string) (*profile.Profile, error) {
	start := time.Now()
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE customer_ref = $1`, customerRef)
	p, err := scanProfile(row)
	metrics.RecordDBQuery("select", "profiles", time.Since(start))
	return p, err
}

// ApplyBilling writes a verified billing update
func (r *ProfileRepository) ApplyBilling(ctx context.Context, userID string, u profile.BillingUpdate) error {
	sets := []string{}
	args := []interface{}{}
	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}

	if u.PlanType != nil {
		add("plan_type", nullPlan(*u.PlanType))
	}
	if u.CustomerRef != nil {
		add("customer_ref", *u.CustomerRef)
	}
	switch {
	case u.ClearSubscription:
		add("subscription_ref", nil)
	case u.SubscriptionRef != nil:
		add("subscription_ref", *u.SubscriptionRef)
	}
	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.CurrentPeriodEnd != nil {
		add("current_period_end", u.CurrentPeriodEnd.Unix())
	}

	synced := u.SyncedAt
	if synced.IsZero() {
		synced = time.Now()
	}
	add("billing_synced_at", synced.Unix())
	add("refresh_attempted_at", nil)
	add("updated_at", time.Now().Unix())

	args = append(args, userID)
	query := "UPDATE profiles SET " + strings.Join(sets, ", ") + " WHERE id = $" + strconv.Itoa(len(args))

	start := time.Now()
	res, err := r.db.ExecContext(ctx, query, args...)
	metrics.RecordDBQuery("update", "profiles", time.Since(start))
	if err != nil {
		return errors.DatabaseError("Failed to update profile billing", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.DatabaseError("Failed to update profile billing", err)
	}
	if n == 0 {
		return profile.ErrNotFound
	}
	return nil
}

// ListStale lists subscribed profiles not synced since cutoff. Profiles whose
// last refresh failed after cutoff wait for the next window, and the oldest
// sync or attempt comes first.
func (r *ProfileRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*profile.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles
		WHERE subscription_ref IS NOT NULL
		  AND (billing_synced_at IS NULL OR billing_synced_at < $1)
		  AND (refresh_attempted_at IS NULL OR refresh_attempted_at < $2)
		ORDER BY COALESCE(refresh_attempted_at, billing_synced_at, 0), id
		LIMIT $3`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, cutoff.Unix(), cutoff.Unix(), limit)
	metrics.RecordDBQuery("select", "profiles", time.Since(start))
	if err != nil {
		return nil, errors.DatabaseError("Failed to list stale profiles", err)
	}
	defer rows.Close()

	var out []*profile.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to list stale profiles", err)
	}
	return out, nil
}

// MarkRefreshAttempt records a failed refresh at the given time
func (r *ProfileRepository) MarkRefreshAttempt(ctx context.Context, userID string, at time.Time) error {
	start := time.Now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET refresh_attempted_at = $1 WHERE id = $2`, at.Unix(), userID)
	metrics.RecordDBQuery("update", "profiles", time.Since(start))
	if err != nil {
		return errors.DatabaseError("Failed to record refresh attempt", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.DatabaseError("Failed to record refresh attempt", err)
	}
	if n == 0 {
		return profile.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(s scanner) (*profile.Profile, error) {
	var (
		p                            profile.Profile
		planType                     sql.NullString
		customerRef, subscriptionRef sql.NullString
		periodEnd, syncedAt, tried   sql.NullInt64
		createdAt, updatedAt         int64
	)

	err := s.Scan(&p.ID, &planType, &customerRef, &subscriptionRef, &p.Status,
		&periodEnd, &syncedAt, &tried, &createdAt, &updatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, profile.ErrNotFound
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get profile", err)
	}

	if planType.Valid {
		p.PlanType = profile.PlanType(planType.String)
	}
	if customerRef.Valid {
		p.CustomerRef = &customerRef.String
	}
	if subscriptionRef.Valid {
		p.SubscriptionRef = &subscriptionRef.String
	}
	p.CurrentPeriodEnd = timeOrNil(periodEnd)
	p.BillingSyncedAt = timeOrNil(syncedAt)
	p.RefreshAttemptedAt = timeOrNil(tried)
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)

	return &p, nil
}

func nullPlan(p profile.PlanType) interface{} {
	if p == "" {
		return nil
	}
	return string(p)
}

func unixOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timeOrNil(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
