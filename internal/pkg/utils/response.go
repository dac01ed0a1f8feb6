package utils

import (
	"encoding/json"
	"net/http"

	"github.com/bizdesk/bizdesk/internal/pkg/errors"
)

// ErrorCodeHeader carries the machine readable error code next to the
// {"error": message} body
const ErrorCodeHeader = "X-Error-Code"

// ErrorResponse represents an error API response
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes an error JSON response from AppError
func WriteError(w http.ResponseWriter, err *errors.AppError) error {
	if err.Code != "" {
		w.Header().Set(ErrorCodeHeader, err.Code)
	}
	return WriteJSON(w, err.StatusCode, ErrorResponse{Error: err.Message})
}

// WriteErrorMessage writes a simple error message
func WriteErrorMessage(w http.ResponseWriter, status int, code, message string) error {
	return WriteError(w, errors.New(code, message, status))
}
