package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bizdesk/bizdesk/internal/config"
	"github.com/bizdesk/bizdesk/internal/domain/billing"
	"github.com/bizdesk/bizdesk/internal/domain/profile"
	"github.com/bizdesk/bizdesk/internal/pkg/logger"
	"github.com/bizdesk/bizdesk/internal/testutil"
)

func newTestRefresher(repo profile.Writer, provider billing.Provider, now time.Time, batchSize int) *EntitlementRefresher {
	cfg := config.ReconcileConfig{
		Schedule:       "@every 1h",
		StalenessBound: 6 * time.Hour,
		BatchSize:      batchSize,
	}
	plans := map[string]string{"price_annual": "Annual", "price_monthly": "Monthly"}
	w := NewEntitlementRefresher(repo, provider, cfg, plans, time.Second, logger.Nop())
	w.now = func() time.Time { return now }
	return w
}

func TestEntitlementRefresher_RunOnce(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	old := now.Add(-24 * time.Hour)
	fresh := now.Add(-time.Hour)
	periodEnd := time.Date(2027, 10, 15, 0, 0, 0, 0, time.UTC)

	repo := testutil.NewMockProfileRepository(
		&profile.Profile{ID: "stale", PlanType: profile.PlanMonthly, SubscriptionRef: testutil.StrPtr("sub_stale"), Status: "active", BillingSyncedAt: &old},
		&profile.Profile{ID: "never", SubscriptionRef: testutil.StrPtr("sub_never"), Status: "active"},
		&profile.Profile{ID: "fresh", SubscriptionRef: testutil.StrPtr("sub_fresh"), Status: "active", BillingSyncedAt: &fresh},
		&profile.Profile{ID: "free", Status: "inactive"},
	)
	provider := testutil.NewFakeBillingProvider()
	provider.Subscriptions["sub_stale"] = &billing.Subscription{
		ID: "sub_stale", CustomerRef: "cus_1", PriceID: "price_annual", Status: "past_due", CurrentPeriodEnd: &periodEnd,
	}
	provider.Subscriptions["sub_never"] = &billing.Subscription{
		ID: "sub_never", CustomerRef: "cus_2", Status: "canceled",
	}

	w := newTestRefresher(repo, provider, now, 10)
	n, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if n != 2 {
		t.Errorf("refreshed = %d, want 2", n)
	}
	if provider.GetSubCalls != 2 {
		t.Errorf("provider calls = %d, want 2", provider.GetSubCalls)
	}

	stale := repo.Profiles["stale"]
	if stale.Status != "past_due" || stale.PlanType != profile.PlanAnnual {
		t.Errorf("stale profile = %q %q, want past_due Annual", stale.Status, stale.PlanType)
	}
	if stale.CurrentPeriodEnd == nil || !periodEnd.Equal(*stale.CurrentPeriodEnd) {
		t.Errorf("CurrentPeriodEnd = %v, want %v", stale.CurrentPeriodEnd, periodEnd)
	}
	if stale.BillingSyncedAt == nil || !now.Equal(*stale.BillingSyncedAt) {
		t.Errorf("BillingSyncedAt = %v, want %v", stale.BillingSyncedAt, now)
	}

	never := repo.Profiles["never"]
	if never.Status != "canceled" || never.SubscriptionRef != nil {
		t.Errorf("canceled profile = %q sub %v, want canceled without subscription", never.Status, never.SubscriptionRef)
	}
	if never.CustomerRef == nil || *never.CustomerRef != "cus_2" {
		t.Errorf("CustomerRef = %v, want cus_2", never.CustomerRef)
	}

	if !fresh.Equal(*repo.Profiles["fresh"].BillingSyncedAt) {
		t.Error("fresh profile was refreshed")
	}
}

func TestEntitlementRefresher_ProviderErrorSkipsProfile(t *testing.T) {
	now := time.Now()
	repo := testutil.NewMockProfileRepository(
		&profile.Profile{ID: "user-1", SubscriptionRef: testutil.StrPtr("sub_missing"), Status: "active"},
	)
	provider := testutil.NewFakeBillingProvider()

	w := newTestRefresher(repo, provider, now, 10)
	n, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if n != 0 || repo.ApplyCalls != 0 {
		t.Errorf("refreshed = %d, apply calls = %d, want 0 and 0", n, repo.ApplyCalls)
	}
	p := repo.Profiles["user-1"]
	if p.Status != "active" {
		t.Errorf("status = %q, want active", p.Status)
	}
	if p.RefreshAttemptedAt == nil || !now.Equal(*p.RefreshAttemptedAt) {
		t.Errorf("RefreshAttemptedAt = %v, want %v", p.RefreshAttemptedAt, now)
	}
}

func TestEntitlementRefresher_FailingProfilesDoNotStarveBatch(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	oldest := now.Add(-72 * time.Hour)
	older := now.Add(-48 * time.Hour)
	old := now.Add(-24 * time.Hour)

	repo := testutil.NewMockProfileRepository(
		&profile.Profile{ID: "gone-1", SubscriptionRef: testutil.StrPtr("sub_gone_1"), Status: "active", BillingSyncedAt: &oldest},
		&profile.Profile{ID: "gone-2", SubscriptionRef: testutil.StrPtr("sub_gone_2"), Status: "active", BillingSyncedAt: &older},
		&profile.Profile{ID: "live", SubscriptionRef: testutil.StrPtr("sub_live"), Status: "active", BillingSyncedAt: &old},
	)
	provider := testutil.NewFakeBillingProvider()
	provider.Subscriptions["sub_live"] = &billing.Subscription{ID: "sub_live", Status: "past_due"}

	w := newTestRefresher(repo, provider, now, 2)

	for run := 1; run <= 2; run++ {
		if _, err := w.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce() #%d error = %v", run, err)
		}
	}

	if got := repo.Profiles["live"].Status; got != "past_due" {
		t.Errorf("live profile status = %q, want past_due", got)
	}
	if provider.GetSubCalls != 3 {
		t.Errorf("provider calls = %d, want 3", provider.GetSubCalls)
	}
}

func TestEntitlementRefresher_ListError(t *testing.T) {
	repo := &failingLister{MockProfileRepository: testutil.NewMockProfileRepository()}
	w := newTestRefresher(repo, testutil.NewFakeBillingProvider(), time.Now(), 10)

	if _, err := w.RunOnce(context.Background()); err == nil {
		t.Error("RunOnce() expected error")
	}
}

func TestEntitlementRefresher_StartStop(t *testing.T) {
	w := newTestRefresher(testutil.NewMockProfileRepository(), testutil.NewFakeBillingProvider(), time.Now(), 10)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Error("second Start() expected error")
	}
	w.Stop()
	w.Stop()

	w.cfg.Schedule = "not a schedule"
	if err := w.Start(context.Background()); err == nil {
		t.Error("Start() with a bad schedule expected error")
	}
}

type failingLister struct {
	*testutil.MockProfileRepository
}

func (f *failingLister) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*profile.Profile, error) {
	return nil, errors.New("connection refused")
}
