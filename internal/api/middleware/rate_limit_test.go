package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bizdesk/bizdesk/internal/domain/session"
	"github.com/bizdesk/bizdesk/internal/testutil"
)

func TestRateLimit(t *testing.T) {
	limiter := NewRateLimiter(0.001, 2)
	handler := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(remote string, sess *session.Session) int {
		req := httptest.NewRequest(http.MethodGet, "/api/subscription-status", nil)
		req.RemoteAddr = remote
		if sess != nil {
			req = req.WithContext(session.WithSession(req.Context(), sess))
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("10.0.0.1:5000", nil); code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, code)
		}
	}
	if code := send("10.0.0.1:5001", nil); code != http.StatusTooManyRequests {
		t.Errorf("third request from same IP status = %d, want 429", code)
	}
	if code := send("10.0.0.2:5000", nil); code != http.StatusOK {
		t.Errorf("other IP status = %d, want 200", code)
	}

	// Signed-in users get their own bucket regardless of IP.
	if code := send("10.0.0.1:5000", testutil.ValidSession("user-1")); code != http.StatusOK {
		t.Errorf("signed-in user status = %d, want 200", code)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	limiter.idle = -time.Second
	limiter.Allow("ip:10.0.0.1")

	limiter.Cleanup()
	if len(limiter.limiters) != 0 {
		t.Errorf("limiters after cleanup = %d, want 0", len(limiter.limiters))
	}
}
