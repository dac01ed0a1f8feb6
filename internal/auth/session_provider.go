package auth

import (
	"net/http"
	"time"

	"github.com/bizdesk/bizdesk/internal/config"
	"github.com/bizdesk/bizdesk/internal/domain/session"
)

// SessionProvider issues and validates cookie-carried sessions. An access
// cookie holds a short-lived token; a refresh cookie holds a long-lived one
// used to re-issue the pair.
type SessionProvider struct {
	cfg config.AuthConfig
	now func() time.Time
}

// NewSessionProvider creates a cookie session provider
func NewSessionProvider(cfg config.AuthConfig) *SessionProvider {
	return &SessionProvider{cfg: cfg, now: time.Now}
}

// WithClock overrides the provider's clock
func (p *SessionProvider) WithClock(now func() time.Time) *SessionProvider {
	p.now = now
	return p
}

// GetSession implements session.Provider
func (p *SessionProvider) GetSession(r *http.Request) (*session.Session, []*http.Cookie, error) {
	now := p.now()

	access := cookieValue(r, p.cfg.AccessCookieName)
	if access != "" {
		if claims, err := ParseClaims(access, p.cfg.JWTSecret, TokenAccess, now); err == nil {
			s := sessionFromClaims(access, claims)
			// Sliding refresh close to expiry
			if s.ExpiresAt.Sub(now) > p.cfg.RefreshWindow {
				return s, nil, nil
			}
			if cookies, refreshed, err := p.reissue(claims.UserID, claims.Email, now); err == nil {
				return refreshed, cookies, nil
			}
			return s, nil, nil
		}
	}

	refresh := cookieValue(r, p.cfg.RefreshCookieName)
	if refresh == "" {
		if access != "" {
			return nil, p.ClearCookies(), nil
		}
		return nil, nil, nil
	}

	claims, err := ParseClaims(refresh, p.cfg.JWTSecret, TokenRefresh, now)
	if err != nil {
		return nil, p.ClearCookies(), nil
	}

	cookies, s, err := p.reissue(claims.UserID, claims.Email, now)
	if err != nil {
		return nil, nil, err
	}
	return s, cookies, nil
}

// Issue mints a new session for userID and returns the cookies carrying it
func (p *SessionProvider) Issue(userID, email string) ([]*http.Cookie, *session.Session, error) {
	return p.reissue(userID, email, p.now())
}

func (p *SessionProvider) reissue(userID, email string, now time.Time) ([]*http.Cookie, *session.Session, error) {
	pair, err := MintTokens(userID, email, p.cfg.JWTSecret, now, p.cfg.AccessTokenExpiry, p.cfg.RefreshTokenExpiry)
	if err != nil {
		return nil, nil, err
	}
	cookies := []*http.Cookie{
		p.cookie(p.cfg.AccessCookieName, pair.AccessToken, pair.AccessExpiresAt),
		p.cookie(p.cfg.RefreshCookieName, pair.RefreshToken, pair.RefreshExpiresAt),
	}
	s := &session.Session{
		Token:     pair.AccessToken,
		UserID:    userID,
		Email:     email,
		ExpiresAt: pair.AccessExpiresAt,
	}
	return cookies, s, nil
}

// ClearCookies returns cookies that remove both session cookies
func (p *SessionProvider) ClearCookies() []*http.Cookie {
	access := p.cookie(p.cfg.AccessCookieName, "", time.Unix(0, 0))
	access.MaxAge = -1
	refresh := p.cookie(p.cfg.RefreshCookieName, "", time.Unix(0, 0))
	refresh.MaxAge = -1
	return []*http.Cookie{access, refresh}
}

func (p *SessionProvider) cookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   p.cfg.CookieDomain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   p.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func sessionFromClaims(token string, c *Claims) *session.Session {
	s := &session.Session{
		Token:  token,
		UserID: c.UserID,
		Email:  c.Email,
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s
}
