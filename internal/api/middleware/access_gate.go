package middleware

import (
	"net/http"
	"time"

	"github.com/bizdesk/bizdesk/internal/config"
	"github.com/bizdesk/bizdesk/internal/domain/session"
	"github.com/bizdesk/bizdesk/internal/gate"
	"github.com/bizdesk/bizdesk/internal/pkg/logger"
	"github.com/bizdesk/bizdesk/internal/pkg/metrics"
)

// ContextKey is a custom type for context keys
type ContextKey string

// AccessGate resolves the request's session once, copies the identity
// provider's cookie instructions to the response and applies the gate's
// decision table for paths in table. Every request leaves with either a
// redirect or a call to next; provider failures count as no session.
func AccessGate(provider session.Provider, table *gate.Table, cfg config.GateConfig, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := resolveSession(provider, r, w, log)

			if sess != nil {
				r = r.WithContext(session.WithSession(r.Context(), sess))
				AddLogField(r, "user_id", sess.UserID)
			}

			class := table.Classify(r.URL.Path)
			if class == gate.Unmatched {
				next.ServeHTTP(w, r)
				return
			}

			outcome := gate.Decide(sess != nil, class)
			metrics.RecordGateDecision(class.String(), outcome.String())

			switch outcome {
			case gate.RedirectSignIn:
				http.Redirect(w, r, cfg.SignInPath, http.StatusTemporaryRedirect)
			case gate.RedirectDashboard:
				http.Redirect(w, r, cfg.DashboardPath, http.StatusTemporaryRedirect)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// resolveSession never fails. Cookies are written before any decision so
// they reach the client on redirects too.
func resolveSession(provider session.Provider, r *http.Request, w http.ResponseWriter, log *logger.Logger) (sess *session.Session) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.RecordGateProviderError()
			log.WithFields(map[string]interface{}{
				"panic": rec,
				"path":  r.URL.Path,
			}).Error("Identity provider panicked")
			sess = nil
		}
	}()

	s, cookies, err := provider.GetSession(r)
	for _, c := range cookies {
		http.SetCookie(w, c)
	}
	if err != nil {
		metrics.RecordGateProviderError()
		log.WithFields(map[string]interface{}{
			"path":       r.URL.Path,
			"request_id": GetRequestID(r),
		}).WarnWithErr(err, "Identity provider unavailable, treating request as unauthenticated")
		return nil
	}
	if !s.Valid(time.Now()) {
		return nil
	}
	return s
}

// GetSession returns the session resolved by AccessGate
func GetSession(r *http.Request) (*session.Session, bool) {
	return session.FromContext(r.Context())
}
