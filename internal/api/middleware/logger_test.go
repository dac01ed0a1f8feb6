package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bizdesk/bizdesk/internal/pkg/logger"
)

func TestLogger_IncludesAddedFields(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "info", Format: "json", Output: &buf})

	// An inner wrapper stands in for middleware that replaces the writer
	inner := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(httptest.NewRecorder(), r)
		})
	}
	handler := Logger(log)(inner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddLogField(r, "user_id", "user-1")
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log entry %q: %v", buf.String(), err)
	}
	if entry["user_id"] != "user-1" || entry["path"] != "/dashboard" {
		t.Errorf("log entry = %v", entry)
	}
}
