package testutil

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/bizdesk/bizdesk/internal/domain/billing"
	"github.com/bizdesk/bizdesk/internal/domain/profile"
	"github.com/bizdesk/bizdesk/internal/domain/session"
)

// MockProfileRepository is an in-memory profile.Repository that counts calls
type MockProfileRepository struct {
	mu       sync.Mutex
	Profiles map[string]*profile.Profile

	GetError   error
	ApplyError error

	GetCalls   int
	ApplyCalls int
}

func NewMockProfileRepository(profiles ...*profile.Profile) *MockProfileRepository {
	m := &MockProfileRepository{Profiles: make(map[string]*profile.Profile)}
	for _, p := range profiles {
		m.Profiles[p.ID] = p
	}
	return m
}

func (m *MockProfileRepository) Create(ctx context.Context, p *profile.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Profiles[p.ID]; ok {
		return errors.New("profile exists")
	}
	cp := *p
	m.Profiles[p.ID] = &cp
	return nil
}

func (m *MockProfileRepository) GetByUserID(ctx context.Context, userID string) (*profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++
	if m.GetError != nil {
		return nil, m.GetError
	}
	p, ok := m.Profiles[userID]
	if !ok {
		return nil, profile.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockProfileRepository) GetByCustomerRef(ctx context.Context, customerRef string) (*profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetError != nil {
		return nil, m.GetError
	}
	for _, p := range m.Profiles {
		if p.CustomerRef != nil && *p.CustomerRef == customerRef {
			cp := *p
			return &cp, nil
		}
	}
	return nil, profile.ErrNotFound
}

func (m *MockProfileRepository) ApplyBilling(ctx context.Context, userID string, u profile.BillingUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ApplyCalls++
	if m.ApplyError != nil {
		return m.ApplyError
	}
	p, ok := m.Profiles[userID]
	if !ok {
		return profile.ErrNotFound
	}
	if u.PlanType != nil {
		p.PlanType = *u.PlanType
	}
	if u.CustomerRef != nil {
		p.CustomerRef = u.CustomerRef
	}
	if u.ClearSubscription {
		p.SubscriptionRef = nil
	} else if u.SubscriptionRef != nil {
		p.SubscriptionRef = u.SubscriptionRef
	}
	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.CurrentPeriodEnd != nil {
		p.CurrentPeriodEnd = u.CurrentPeriodEnd
	}
	synced := u.SyncedAt
	p.BillingSyncedAt = &synced
	p.RefreshAttemptedAt = nil
	return nil
}

func (m *MockProfileRepository) MarkRefreshAttempt(ctx context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Profiles[userID]
	if !ok {
		return profile.ErrNotFound
	}
	p.RefreshAttemptedAt = &at
	return nil
}

func (m *MockProfileRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*profile.Profile
	for _, p := range m.Profiles {
		if !p.HasSubscription() {
			continue
		}
		if p.BillingSyncedAt != nil && !p.BillingSyncedAt.Before(cutoff) {
			continue
		}
		if p.RefreshAttemptedAt != nil && !p.RefreshAttemptedAt.Before(cutoff) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}

	order := func(p *profile.Profile) int64 {
		switch {
		case p.RefreshAttemptedAt != nil:
			return p.RefreshAttemptedAt.Unix()
		case p.BillingSyncedAt != nil:
			return p.BillingSyncedAt.Unix()
		}
		return 0
	}
	sort.Slice(out, func(i, j int) bool {
		if oi, oj := order(out[i]), order(out[j]); oi != oj {
			return oi < oj
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FakeBillingProvider is a scripted billing.Provider
type FakeBillingProvider struct {
	mu sync.Mutex

	Session       *billing.CheckoutSession
	CheckoutError error
	// Block, when set, is received from before CreateCheckoutSession returns
	Block chan struct{}

	Event      *billing.Event
	ParseError error

	Subscriptions        map[string]*billing.Subscription
	GetSubscriptionError error

	CheckoutCalls []billing.CheckoutParams
	ParseCalls    int
	GetSubCalls   int
}

func NewFakeBillingProvider() *FakeBillingProvider {
	return &FakeBillingProvider{
		Session: &billing.CheckoutSession{
			ID:  "cs_abc",
			URL: "https://pay.example/cs_abc",
		},
		Subscriptions: make(map[string]*billing.Subscription),
	}
}

func (f *FakeBillingProvider) CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (*billing.CheckoutSession, error) {
	f.mu.Lock()
	f.CheckoutCalls = append(f.CheckoutCalls, params)
	block := f.Block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.CheckoutError != nil {
		return nil, f.CheckoutError
	}
	s := *f.Session
	s.PriceID = params.PriceID
	s.Mode = params.Mode
	return &s, nil
}

func (f *FakeBillingProvider) ParseEvent(payload []byte, signature string) (*billing.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ParseCalls++
	if f.ParseError != nil {
		return nil, f.ParseError
	}
	return f.Event, nil
}

func (f *FakeBillingProvider) GetSubscription(ctx context.Context, subscriptionRef string) (*billing.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetSubCalls++
	if f.GetSubscriptionError != nil {
		return nil, f.GetSubscriptionError
	}
	s, ok := f.Subscriptions[subscriptionRef]
	if !ok {
		return nil, errors.New("No such subscription: " + subscriptionRef)
	}
	return s, nil
}

// CheckoutCallCount returns the number of checkout calls made so far
func (f *FakeBillingProvider) CheckoutCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.CheckoutCalls)
}

// StubSessionProvider is a fixed session.Provider
type StubSessionProvider struct {
	Session *session.Session
	Cookies []*http.Cookie
	Err     error
	Calls   int
}

func (s *StubSessionProvider) GetSession(r *http.Request) (*session.Session, []*http.Cookie, error) {
	s.Calls++
	return s.Session, s.Cookies, s.Err
}

// ValidSession returns a session for userID valid for an hour
func ValidSession(userID string) *session.Session {
	return &session.Session{
		Token:     "tok-" + userID,
		UserID:    userID,
		Email:     userID + "@example.com",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

// MemoryEventLog is an in-memory billing.EventLog
type MemoryEventLog struct {
	mu   sync.Mutex
	seen map[string]string

	MarkError error
}

func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{seen: make(map[string]string)}
}

func (l *MemoryEventLog) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.MarkError != nil {
		return false, l.MarkError
	}
	if _, ok := l.seen[eventID]; ok {
		return false, nil
	}
	l.seen[eventID] = eventType
	return true, nil
}

func (l *MemoryEventLog) Forget(ctx context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.seen, eventID)
	return nil
}

// Seen reports whether eventID is recorded
func (l *MemoryEventLog) Seen(eventID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[eventID]
	return ok
}
