package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/cert-registry/internal/errors"
	"github.com/cert-registry/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// Common error codes raised by the HTTP layer itself. Service-level
// codes pass through unchanged.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondServiceError maps a service error to its HTTP status and sends it.
func respondServiceError(w http.ResponseWriter, err error) {
	statusCode := apperrors.GetHTTPStatusCode(err)
	catErr := apperrors.Categorize(err)

	message := catErr.Message
	if statusCode == http.StatusInternalServerError && !apperrors.IsUserError(err) {
		// Internal details stay in the logs.
		message = "An internal error occurred"
	}

	respondError(w, statusCode, catErr.Code, message, nil)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
