package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bizdesk/bizdesk/internal/config"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:          "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		RefreshWindow:      2 * time.Minute,
		AccessCookieName:   "bd_access",
		RefreshCookieName:  "bd_refresh",
	}
}

func requestWith(cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	return req
}

func TestSessionProvider_GetSession(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := testAuthConfig()

	issuer := NewSessionProvider(cfg).WithClock(func() time.Time { return base })
	cookies, _, err := issuer.Issue("user-1", "owner@example.com")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	access, refresh := cookies[0], cookies[1]

	tests := []struct {
		name        string
		at          time.Time
		cookies     []*http.Cookie
		wantUser    string
		wantCookies int
	}{
		{
			name:     "fresh access token",
			at:       base.Add(time.Minute),
			cookies:  []*http.Cookie{access, refresh},
			wantUser: "user-1",
		},
		{
			name:        "access token inside refresh window is reissued",
			at:          base.Add(14 * time.Minute),
			cookies:     []*http.Cookie{access, refresh},
			wantUser:    "user-1",
			wantCookies: 2,
		},
		{
			name:        "expired access token with valid refresh",
			at:          base.Add(time.Hour),
			cookies:     []*http.Cookie{access, refresh},
			wantUser:    "user-1",
			wantCookies: 2,
		},
		{
			name:        "only refresh cookie",
			at:          base.Add(time.Hour),
			cookies:     []*http.Cookie{refresh},
			wantUser:    "user-1",
			wantCookies: 2,
		},
		{
			name:        "both expired clears cookies",
			at:          base.Add(48 * time.Hour),
			cookies:     []*http.Cookie{access, refresh},
			wantCookies: 2,
		},
		{
			name: "no cookies",
			at:   base,
		},
		{
			name:        "garbage access cookie",
			at:          base,
			cookies:     []*http.Cookie{{Name: "bd_access", Value: "not-a-jwt"}},
			wantCookies: 2,
		},
		{
			name:        "refresh token in access cookie",
			at:          base.Add(time.Minute),
			cookies:     []*http.Cookie{{Name: "bd_access", Value: refresh.Value}},
			wantCookies: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewSessionProvider(cfg).WithClock(func() time.Time { return tt.at })

			s, set, err := p.GetSession(requestWith(tt.cookies...))
			if err != nil {
				t.Fatalf("GetSession() error = %v", err)
			}

			gotUser := ""
			if s != nil {
				gotUser = s.UserID
				if !s.Valid(tt.at) {
					t.Errorf("GetSession() returned a session that is not valid at %v", tt.at)
				}
			}
			if gotUser != tt.wantUser {
				t.Errorf("GetSession() user = %q, want %q", gotUser, tt.wantUser)
			}
			if len(set) != tt.wantCookies {
				t.Errorf("GetSession() cookies = %d, want %d", len(set), tt.wantCookies)
			}
		})
	}
}

func TestSessionProvider_WrongSecret(t *testing.T) {
	now := time.Now()
	cfg := testAuthConfig()
	pair, err := MintTokens("user-1", "", "other-secret", now, time.Minute*10, time.Hour)
	if err != nil {
		t.Fatalf("MintTokens() error = %v", err)
	}

	p := NewSessionProvider(cfg)
	s, _, err := p.GetSession(requestWith(&http.Cookie{Name: cfg.AccessCookieName, Value: pair.AccessToken}))
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if s != nil {
		t.Error("GetSession() accepted a token signed with another secret")
	}
}
