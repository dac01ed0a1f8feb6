package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bizdesk/bizdesk/internal/config"
	"github.com/bizdesk/bizdesk/internal/domain/billing"
	"github.com/bizdesk/bizdesk/internal/domain/profile"
	"github.com/bizdesk/bizdesk/internal/pkg/logger"
	"github.com/bizdesk/bizdesk/internal/pkg/metrics"
)

// EntitlementRefresher periodically re-reads subscriptions whose cached
// billing fields are older than the staleness bound
type EntitlementRefresher struct {
	profiles    profile.Writer
	provider    billing.Provider
	cfg         config.ReconcileConfig
	plans       map[string]string
	callTimeout time.Duration
	logger      *logger.Logger
	now         func() time.Time

	scheduler *cron.Cron
	mu        sync.Mutex
	running   bool
}

// NewEntitlementRefresher creates a new refresher worker
func NewEntitlementRefresher(
	profiles profile.Writer,
	provider billing.Provider,
	cfg config.ReconcileConfig,
	plans map[string]string,
	callTimeout time.Duration,
	log *logger.Logger,
) *EntitlementRefresher {
	return &EntitlementRefresher{
		profiles:    profiles,
		provider:    provider,
		cfg:         cfg,
		plans:       plans,
		callTimeout: callTimeout,
		logger:      log,
		now:         time.Now,
	}
}

// Start schedules RunOnce on the configured cron schedule
func (w *EntitlementRefresher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("entitlement refresher is already running")
	}

	w.scheduler = cron.New()
	_, err := w.scheduler.AddFunc(w.cfg.Schedule, func() {
		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.ErrorWithErr(err, "Entitlement refresh failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", w.cfg.Schedule, err)
	}

	w.scheduler.Start()
	w.running = true

	w.logger.WithFields(map[string]interface{}{
		"schedule":        w.cfg.Schedule,
		"staleness_bound": w.cfg.StalenessBound.String(),
	}).Info("Entitlement refresher started")

	return nil
}

// Stop stops the scheduler and waits for a running refresh to finish
func (w *EntitlementRefresher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	<-w.scheduler.Stop().Done()
	w.running = false
	w.logger.Info("Entitlement refresher stopped")
}

// RunOnce refreshes one batch of stale profiles and returns how many were
// updated
func (w *EntitlementRefresher) RunOnce(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.cfg.StalenessBound)
	stale, err := w.profiles.ListStale(ctx, cutoff, w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, p := range stale {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		if err := w.refresh(ctx, p); err != nil {
			metrics.RecordProfileRefresh("error")
			log := w.logger.WithFields(map[string]interface{}{
				"user_id":         p.ID,
				"subscription_id": *p.SubscriptionRef,
			})
			log.ErrorWithErr(err, "Failed to refresh subscription")
			if merr := w.profiles.MarkRefreshAttempt(ctx, p.ID, w.now()); merr != nil {
				log.ErrorWithErr(merr, "Failed to record refresh attempt")
			}
			continue
		}
		metrics.RecordProfileRefresh("ok")
		refreshed++
	}

	if len(stale) > 0 {
		w.logger.WithFields(map[string]interface{}{
			"stale":     len(stale),
			"refreshed": refreshed,
		}).Info("Entitlement refresh completed")
	}
	return refreshed, nil
}

func (w *EntitlementRefresher) refresh(ctx context.Context, p *profile.Profile) error {
	callCtx := ctx
	if w.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, w.callTimeout)
		defer cancel()
	}

	sub, err := w.provider.GetSubscription(callCtx, *p.SubscriptionRef)
	if err != nil {
		return err
	}

	update := profile.BillingUpdate{
		Status:           &sub.Status,
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
		SyncedAt:         w.now(),
	}
	if sub.CustomerRef != "" {
		update.CustomerRef = &sub.CustomerRef
	}
	if plan := profile.PlanType(w.plans[sub.PriceID]); plan.IsValid() {
		update.PlanType = &plan
	}
	if sub.Status == profile.StatusCanceled {
		update.ClearSubscription = true
	}

	return w.profiles.ApplyBilling(ctx, p.ID, update)
}
