package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bizdesk/bizdesk/internal/cache"
	"github.com/bizdesk/bizdesk/internal/config"
	"github.com/bizdesk/bizdesk/internal/domain/billing"
	"github.com/bizdesk/bizdesk/internal/domain/session"
	"github.com/bizdesk/bizdesk/internal/pkg/errors"
	"github.com/bizdesk/bizdesk/internal/pkg/logger"
	"github.com/bizdesk/bizdesk/internal/pkg/metrics"
	"github.com/bizdesk/bizdesk/internal/pkg/validator"
)

// CheckoutInput is a request to start a hosted checkout
type CheckoutInput struct {
	PriceID       string `json:"priceId" validate:"required,max=255"`
	CustomerEmail string `json:"customerEmail" validate:"omitempty,email,max=254"`
	// IdempotencyKey is forwarded to the billing provider when set
	IdempotencyKey string `json:"-"`
}

// CheckoutService starts hosted checkout sessions at the billing provider
type CheckoutService struct {
	provider  billing.Provider
	guard     cache.Guard
	cfg       config.BillingConfig
	validator *validator.Validator
	logger    *logger.Logger
}

// NewCheckoutService creates a new checkout service. guard may be nil.
func NewCheckoutService(provider billing.Provider, guard cache.Guard, cfg config.BillingConfig, log *logger.Logger) *CheckoutService {
	val := validator.New().
		RegisterMessage("priceId", "required", "Price ID is required").
		RegisterMessage("customerEmail", "email", "Customer email must be a valid email address")

	return &CheckoutService{
		provider:  provider,
		guard:     guard,
		cfg:       cfg,
		validator: val,
		logger:    log,
	}
}

// CreateSession validates the input and asks the provider for one checkout
// session. sess may be nil for anonymous checkout.
func (s *CheckoutService) CreateSession(ctx context.Context, sess *session.Session, in CheckoutInput) (*billing.CheckoutSession, error) {
	in.PriceID = strings.TrimSpace(in.PriceID)
	in.CustomerEmail = strings.TrimSpace(in.CustomerEmail)

	if errs := s.validator.Validate(in); len(errs) > 0 {
		metrics.RecordCheckout("invalid")
		return nil, errors.Validation(errs[0].Message)
	}

	params := billing.CheckoutParams{
		PriceID:        in.PriceID,
		Quantity:       1,
		Mode:           billing.ModeSubscription,
		CustomerEmail:  in.CustomerEmail,
		SuccessURL:     s.cfg.SuccessURL,
		CancelURL:      s.cfg.CancelURL,
		IdempotencyKey: in.IdempotencyKey,
	}
	if sess != nil {
		params.ClientReference = sess.UserID
		if params.CustomerEmail == "" {
			params.CustomerEmail = sess.Email
		}
	}

	release, err := s.acquire(ctx, guardKey(params))
	if err != nil {
		return nil, err
	}
	defer release()

	callCtx := ctx
	if s.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
	}

	cs, err := s.provider.CreateCheckoutSession(callCtx, params)
	if err != nil {
		if stderrors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("billing provider did not respond within %s", s.cfg.CallTimeout)
		}
		metrics.RecordCheckout("upstream_error")
		s.logger.WithFields(map[string]interface{}{
			"price_id": params.PriceID,
			"user_id":  params.ClientReference,
		}).ErrorWithErr(err, "Failed to create checkout session")
		return nil, s.upstream(err)
	}

	metrics.RecordCheckout("created")
	s.logger.WithFields(map[string]interface{}{
		"session_id": cs.ID,
		"price_id":   params.PriceID,
		"user_id":    params.ClientReference,
	}).Info("Checkout session created")

	return cs, nil
}

// acquire takes the in-flight guard for key. A guard backend failure is
// logged and the checkout proceeds unguarded.
func (s *CheckoutService) acquire(ctx context.Context, key string) (func(), error) {
	noop := func() {}
	if s.guard == nil || key == "" {
		return noop, nil
	}

	release, ok, err := s.guard.Acquire(ctx, key, s.cfg.CheckoutGuardTTL)
	if err != nil {
		s.logger.WarnWithErr(err, "Checkout guard unavailable")
		return noop, nil
	}
	if !ok {
		metrics.RecordCheckout("conflict")
		return nil, errors.Conflict("A checkout is already in progress")
	}
	return release, nil
}

func (s *CheckoutService) upstream(err error) *errors.AppError {
	if s.cfg.ExposeProviderErrors {
		return errors.Upstream("billing provider", err)
	}
	return errors.Wrap(err, errors.ErrCodeUpstream, errors.GenericMessage, http.StatusInternalServerError)
}

// guardKey identifies the buyer a checkout belongs to
func guardKey(p billing.CheckoutParams) string {
	switch {
	case p.ClientReference != "":
		return "user:" + p.ClientReference
	case p.CustomerEmail != "":
		return "email:" + strings.ToLower(p.CustomerEmail)
	default:
		return ""
	}
}
