package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/bizdesk/bizdesk/internal/pkg/logger"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

type logFieldsKey struct{}

// AddLogField adds a field to the request log written by Logger
func AddLogField(r *http.Request, key string, value interface{}) {
	if fields, ok := r.Context().Value(logFieldsKey{}).(map[string]interface{}); ok {
		fields[key] = value
	}
}

// Logger returns a middleware that logs HTTP requests. Redirects issued by
// the access gate are logged with their target.
func Logger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			extra := make(map[string]interface{})

			next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), logFieldsKey{}, extra)))

			fields := map[string]interface{}{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     wrapped.statusCode,
				"duration":   time.Since(start).Milliseconds(),
				"bytes":      wrapped.written,
				"ip":         r.RemoteAddr,
				"user_agent": r.UserAgent(),
				"request_id": GetRequestID(r),
			}
			if loc := wrapped.Header().Get("Location"); loc != "" {
				fields["location"] = loc
			}
			for k, v := range extra {
				fields[k] = v
			}

			entry := log.WithFields(fields)
			if wrapped.statusCode >= http.StatusInternalServerError {
				entry.Warn("HTTP request")
				return
			}
			entry.Info("HTTP request")
		})
	}
}
