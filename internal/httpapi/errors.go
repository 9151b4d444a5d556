package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kjstillabower/weathercache/internal/coord"
	"github.com/kjstillabower/weathercache/internal/store"
)

// errorCode maps a classified error to the stable JSON code and HTTP status
// the views key their fallbacks on.
func errorCode(err error) (int, string) {
	switch {
	case errors.Is(err, coord.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, store.ErrDuplicateLocation):
		return http.StatusConflict, "DUPLICATE_LOCATION"
	case errors.Is(err, coord.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, coord.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, coord.ErrAuth):
		return http.StatusBadGateway, "AUTH_FAILED"
	case errors.Is(err, coord.ErrInvalidResponse):
		return http.StatusBadGateway, "INVALID_RESPONSE"
	case errors.Is(err, coord.ErrCancelled):
		return http.StatusServiceUnavailable, "CANCELLED"
	case errors.Is(err, store.ErrStorage):
		return http.StatusInternalServerError, "STORAGE"
	default:
		return http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"
	}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeClassifiedError maps a service error through the taxonomy and logs the
// underlying cause at DEBUG level.
func writeClassifiedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorCode(err)
	writeError(w, r, status, code, err.Error())
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("request failed", zap.String("code", code), zap.Error(err))
	}
}
