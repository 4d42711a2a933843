package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/benvon/questlog/internal/engine"
	"github.com/benvon/questlog/internal/tracker"
	"github.com/benvon/questlog/internal/validation"
)

// maxErrorMessageLength bounds messages echoed back to clients
const maxErrorMessageLength = 200

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// sanitizeErrorMessage truncates error messages returned to clients
func sanitizeErrorMessage(message string) string {
	if len(message) > maxErrorMessageLength {
		return message[:maxErrorMessageLength] + "..."
	}
	return message
}

// respondJSONError sends an error JSON response with sanitized error messages
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   false,
		"error":     errorType,
		"message":   sanitizeErrorMessage(message),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// decodeBody decodes an optional JSON body into dst and validates it.
// An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return validation.Validate.Struct(dst)
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validation.Validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// transitionStatus maps a rejected transition to an HTTP status and error label
func transitionStatus(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		return http.StatusBadRequest, "Bad Request"
	case errors.Is(err, engine.ErrLimitReached):
		return http.StatusConflict, "Limit Reached"
	case errors.Is(err, engine.ErrBoostConflict):
		return http.StatusConflict, "Boost Conflict"
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, tracker.ErrNotConfirmed):
		return http.StatusPreconditionRequired, "Confirmation Required"
	case errors.Is(err, engine.ErrSyncFailure):
		return http.StatusServiceUnavailable, "Service Unavailable"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

// respondTransitionError sends the error response for a rejected transition.
// Unexpected errors are not echoed to the client.
func respondTransitionError(w http.ResponseWriter, err error, fallback string) {
	status, label := transitionStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = fallback
	}
	respondJSONError(w, status, label, message)
}
