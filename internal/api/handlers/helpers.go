package handlers

import (
	"net/http"

	"github.com/bizdesk/bizdesk/internal/api/middleware"
	"github.com/bizdesk/bizdesk/internal/pkg/errors"
	"github.com/bizdesk/bizdesk/internal/pkg/logger"
	"github.com/bizdesk/bizdesk/internal/pkg/utils"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	utils.WriteJSON(w, status, data)
}

// respondError converts err into a structured response and logs it
func respondError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	appErr := errors.From(err)

	entry := log.WithFields(map[string]interface{}{
		"code":       appErr.Code,
		"status":     appErr.StatusCode,
		"path":       r.URL.Path,
		"request_id": middleware.GetRequestID(r),
	})
	if appErr.StatusCode >= http.StatusInternalServerError {
		entry.ErrorWithErr(appErr, "Request failed")
	} else {
		entry.WarnWithErr(appErr, "Request rejected")
	}

	middleware.AddLogField(r, "error_code", appErr.Code)
	utils.WriteError(w, appErr)
}
