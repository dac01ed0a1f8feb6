package services

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/bizdesk/bizdesk/internal/domain/entitlement"
	"github.com/bizdesk/bizdesk/internal/domain/profile"
	"github.com/bizdesk/bizdesk/internal/domain/session"
	"github.com/bizdesk/bizdesk/internal/pkg/errors"
	"github.com/bizdesk/bizdesk/internal/pkg/logger"
	"github.com/bizdesk/bizdesk/internal/pkg/metrics"
)

// SubscriptionService derives the entitlement view of the current user
type SubscriptionService struct {
	profiles profile.Reader
	logger   *logger.Logger
	now      func() time.Time
}

// NewSubscriptionService creates a new subscription status service
func NewSubscriptionService(profiles profile.Reader, log *logger.Logger) *SubscriptionService {
	return &SubscriptionService{
		profiles: profiles,
		logger:   log,
		now:      time.Now,
	}
}

// WithClock replaces the clock used for estimated billing dates
func (s *SubscriptionService) WithClock(now func() time.Time) *SubscriptionService {
	s.now = now
	return s
}

// Status returns the subscription view for sess. checkoutSessionID is the
// unverified id echoed back by the checkout redirect; it only picks the
// message and never changes what the profile says.
func (s *SubscriptionService) Status(ctx context.Context, sess *session.Session, checkoutSessionID string) (*entitlement.StatusResult, error) {
	if sess == nil || sess.UserID == "" {
		metrics.RecordStatusRead("unauthenticated")
		return nil, errors.Unauthorized("Not authenticated")
	}

	p, err := s.profiles.GetByUserID(ctx, sess.UserID)
	if err != nil {
		if stderrors.Is(err, profile.ErrNotFound) {
			metrics.RecordStatusRead("no_profile")
			return nil, errors.NotFound("Profile")
		}
		metrics.RecordStatusRead("error")
		return nil, err
	}

	if !p.HasSubscription() {
		metrics.RecordStatusRead("no_subscription")
		return &entitlement.StatusResult{Message: entitlement.MessageNoSubscription}, nil
	}

	view := entitlement.FromProfile(p, s.now())
	result := &entitlement.StatusResult{Subscription: view}

	if checkoutSessionID != "" {
		result.Message = entitlement.MessageProcessing
		if entitlement.IsEntitled(view.Status) {
			result.Message = entitlement.MessageActivated
		}
		s.logger.WithFields(map[string]interface{}{
			"user_id":             sess.UserID,
			"checkout_session_id": checkoutSessionID,
			"status":              view.Status,
		}).Debug("Status read after checkout redirect")
	}

	metrics.RecordStatusRead("ok")
	return result, nil
}
