package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sungwon/campaign-dispatch/internal/auth"
	"github.com/sungwon/campaign-dispatch/internal/dispatch"
	"github.com/sungwon/campaign-dispatch/internal/logger"
)

// respondJSON writes data as JSON with the given status code. A nil data
// writes only the status and Content-Type header.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondValidationErrors writes a 400 response listing every failed check.
func respondValidationErrors(w http.ResponseWriter, details []string) {
	respondJSON(w, http.StatusBadRequest, map[string]any{
		"error":   "validation_failed",
		"details": details,
	})
}

// respondDispatchError maps err to a status and writes it. Server-side
// failures are logged with the request's logger under msg.
func respondDispatchError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := dispatchErrorStatus(err)
	if status >= http.StatusInternalServerError {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg(msg)
	}
	respondError(w, status, err.Error())
}

// dispatchErrorStatus maps dispatch errors to HTTP status codes.
func dispatchErrorStatus(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrNotFound), errors.Is(err, dispatch.ErrRecipientNotFound):
		return http.StatusNotFound
	case errors.Is(err, dispatch.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrEmptyAudience), errors.Is(err, dispatch.ErrNoContent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dispatch.ErrInvalidTestSend):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, dispatch.ErrTransportUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
