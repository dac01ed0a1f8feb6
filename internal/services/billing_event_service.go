package services

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/bizdesk/bizdesk/internal/domain/billing"
	"github.com/bizdesk/bizdesk/internal/domain/profile"
	"github.com/bizdesk/bizdesk/internal/pkg/errors"
	"github.com/bizdesk/bizdesk/internal/pkg/logger"
	"github.com/bizdesk/bizdesk/internal/pkg/metrics"
)

// Results recorded for each billing event
const (
	eventApplied   = "applied"
	eventIgnored   = "ignored"
	eventDuplicate = "duplicate"
	eventUnmatched = "unmatched"
	eventStale     = "stale"
	eventFailed    = "failed"
)

// BillingEventService applies verified provider events to profiles. It is
// the only writer of billing fields besides the periodic refresher.
type BillingEventService struct {
	provider billing.Provider
	profiles profile.Repository
	events   billing.EventLog
	plans    map[string]string
	logger   *logger.Logger
	now      func() time.Time
}

// NewBillingEventService creates a new billing event service. plans maps
// provider price ids to plan labels.
func NewBillingEventService(
	provider billing.Provider,
	profiles profile.Repository,
	events billing.EventLog,
	plans map[string]string,
	log *logger.Logger,
) *BillingEventService {
	return &BillingEventService{
		provider: provider,
		profiles: profiles,
		events:   events,
		plans:    plans,
		logger:   log,
		now:      time.Now,
	}
}

// HandleWebhook verifies payload and applies it at most once
func (s *BillingEventService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*billing.Event, error) {
	ev, err := s.provider.ParseEvent(payload, signature)
	if err != nil {
		if stderrors.Is(err, billing.ErrInvalidSignature) {
			s.logger.WarnWithErr(err, "Rejected billing event")
			return nil, errors.BadRequest("Invalid webhook signature")
		}
		return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "Invalid webhook payload", http.StatusBadRequest)
	}

	log := s.logger.WithFields(map[string]interface{}{
		"event_id":   ev.ID,
		"event_type": ev.ProviderType,
	})

	if ev.Type == billing.EventIgnored {
		metrics.RecordBillingEvent(ev.ProviderType, eventIgnored)
		log.Debug("Billing event ignored")
		return ev, nil
	}

	first, err := s.events.MarkProcessed(ctx, ev.ID, ev.ProviderType)
	if err != nil {
		return nil, err
	}
	if !first {
		metrics.RecordBillingEvent(string(ev.Type), eventDuplicate)
		log.Info("Billing event already applied")
		return ev, nil
	}

	result, err := s.apply(ctx, ev)
	if err != nil {
		metrics.RecordBillingEvent(string(ev.Type), eventFailed)
		if ferr := s.events.Forget(ctx, ev.ID); ferr != nil {
			log.ErrorWithErr(ferr, "Failed to release billing event for redelivery")
		}
		log.ErrorWithErr(err, "Failed to apply billing event")
		return nil, err
	}

	metrics.RecordBillingEvent(string(ev.Type), result)
	log.WithFields(map[string]interface{}{
		"result":          result,
		"subscription_id": ev.SubscriptionRef,
		"status":          ev.Status,
	}).Info("Billing event processed")
	return ev, nil
}

func (s *BillingEventService) apply(ctx context.Context, ev *billing.Event) (string, error) {
	p, err := s.resolveProfile(ctx, ev)
	if stderrors.Is(err, profile.ErrNotFound) {
		s.logger.WithFields(map[string]interface{}{
			"event_id":    ev.ID,
			"customer_id": ev.CustomerRef,
			"user_id":     ev.ClientReference,
		}).Warn("No profile matches billing event")
		return eventUnmatched, nil
	}
	if err != nil {
		return "", err
	}

	if isStale(p, ev) {
		return eventStale, nil
	}

	update := profile.BillingUpdate{SyncedAt: s.now()}
	if ev.CustomerRef != "" {
		update.CustomerRef = &ev.CustomerRef
	}
	if plan, ok := s.planFor(ev.PriceID); ok {
		update.PlanType = &plan
	}
	if ev.CurrentPeriodEnd != nil {
		update.CurrentPeriodEnd = ev.CurrentPeriodEnd
	}

	status := ev.Status
	switch ev.Type {
	case billing.EventSubscriptionCancelled:
		if status == "" {
			status = profile.StatusCanceled
		}
		update.ClearSubscription = true
	default:
		if ev.SubscriptionRef != "" {
			update.SubscriptionRef = &ev.SubscriptionRef
		}
	}
	if status != "" {
		update.Status = &status
	}

	if err := s.profiles.ApplyBilling(ctx, p.ID, update); err != nil {
		if stderrors.Is(err, profile.ErrNotFound) {
			return eventUnmatched, nil
		}
		return "", err
	}
	return eventApplied, nil
}

// isStale reports whether ev describes a subscription the profile does not
// currently hold. Only a completed checkout or a newly created subscription
// may attach a subscription; updates and cancellations must name the current
// one, so a late update cannot revive a canceled subscription.
func isStale(p *profile.Profile, ev *billing.Event) bool {
	switch ev.Type {
	case billing.EventCheckoutCompleted, billing.EventSubscriptionCreated:
		return false
	}
	return !p.HasSubscription() || *p.SubscriptionRef != ev.SubscriptionRef
}

// resolveProfile prefers the user id carried by the checkout, then the
// customer reference recorded by an earlier event
func (s *BillingEventService) resolveProfile(ctx context.Context, ev *billing.Event) (*profile.Profile, error) {
	if ev.ClientReference != "" {
		return s.profiles.GetByUserID(ctx, ev.ClientReference)
	}
	if ev.CustomerRef != "" {
		return s.profiles.GetByCustomerRef(ctx, ev.CustomerRef)
	}
	return nil, profile.ErrNotFound
}

func (s *BillingEventService) planFor(priceID string) (profile.PlanType, bool) {
	if priceID == "" {
		return "", false
	}
	plan := profile.PlanType(s.plans[priceID])
	return plan, plan.IsValid()
}
