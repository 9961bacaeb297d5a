package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tkralik/turnstile/pkg/api"
)

// HTTPStatus maps an engine error to the corresponding HTTP status code:
// quota exhaustion → 429, prompt too long → 413, backend unreachable →
// 503, shield misconfiguration → 404, forwarded backend status → as
// given, anything else → 500.
func HTTPStatus(err error) int {
	var quotaErr *api.QuotaExceededError
	var tooLong *api.PromptTooLongError
	var connErr *api.ConnectivityError
	var shieldErr *api.ShieldIntegrityError
	var statusErr *api.StatusError

	switch {
	case errors.As(err, &quotaErr):
		return http.StatusTooManyRequests
	case errors.As(err, &tooLong):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &connErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &shieldErr):
		return http.StatusNotFound
	case errors.As(err, &statusErr):
		return statusErr.StatusCode
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the JSON error shape: a human-readable response line plus
// the underlying cause.
type errorBody struct {
	Detail errorDetail `json:"detail"`
}

type errorDetail struct {
	Response string `json:"response"`
	Cause    string `json:"cause,omitempty"`
}

// WriteError writes a JSON error response, deriving the HTTP status code
// from the error type.
func WriteError(w http.ResponseWriter, err error) {
	WriteErrorStatus(w, err, HTTPStatus(err))
}

// WriteErrorStatus writes a JSON error response with an explicit status.
func WriteErrorStatus(w http.ResponseWriter, err error, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorBody{
		Detail: errorDetail{
			Response: http.StatusText(statusCode),
			Cause:    err.Error(),
		},
	})
}
