// Package session describes the identity session as seen by the entitlement
// core. Sessions are issued and invalidated by the identity provider; the core
// only reads them.
package session

import (
	"context"
	"net/http"
	"time"
)

// Session is a validated identity session
type Session struct {
	Token     string    `json:"-"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether s is present and not expired at now
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.UserID != "" && now.Before(s.ExpiresAt)
}

// Provider resolves the session carried by a request.
//
// GetSession returns a nil session when the request carries no valid session.
// The returned cookies are refresh instructions that must be copied to the
// response whatever the caller decides. A non-nil error means the provider
// could not be consulted.
type Provider interface {
	GetSession(r *http.Request) (*Session, []*http.Cookie, error)
}

type contextKey struct{}

// WithSession returns a copy of ctx carrying s
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored in ctx, if any
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok && s != nil
}
