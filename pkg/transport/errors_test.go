package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tkralik/turnstile/pkg/api"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"quota exceeded", &api.QuotaExceededError{Subject: "u1", SubjectType: "user"}, http.StatusTooManyRequests},
		{"prompt too long", &api.PromptTooLongError{Model: "m1", Message: "too long"}, http.StatusRequestEntityTooLarge},
		{"connectivity", &api.ConnectivityError{Backend: "http://b", Err: errors.New("refused")}, http.StatusServiceUnavailable},
		{"shield integrity", &api.ShieldIntegrityError{ShieldID: "s1", Model: "missing"}, http.StatusNotFound},
		{"forwarded status", &api.StatusError{StatusCode: 422, Message: "bad"}, 422},
		{"persistence", &api.PersistenceError{Op: "write", Err: errors.New("down")}, http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHTTPStatusWrapped(t *testing.T) {
	wrapped := &api.PersistenceError{
		Op:  "dispatch",
		Err: &api.ConnectivityError{Backend: "http://b", Err: errors.New("refused")},
	}
	// The wrapped connectivity error should be found through Unwrap.
	if got := HTTPStatus(wrapped); got != http.StatusServiceUnavailable {
		t.Errorf("HTTPStatus() = %d, want 503", got)
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, &api.QuotaExceededError{Subject: "u1", SubjectType: "user"})

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Detail.Cause != "user u1 has no available tokens" {
		t.Errorf("cause = %q", body.Detail.Cause)
	}
}
