package provider

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/tkralik/turnstile/pkg/api"
)

func TestMapStatusErrorContextWindow(t *testing.T) {
	tests := []struct {
		name    string
		message string
		tooLong bool
	}{
		{"vllm phrasing", "This model's maximum context length is 4096 tokens", true},
		{"openai phrasing", "Your input exceeds the context window of this model", true},
		{"llama-stack phrasing", "the prompt is too long for this model", true},
		{"mixed case", "Input Length Will Exceed The Limit", true},
		{"unrelated 400", "invalid value for parameter temperature", false},
		{"unrelated 404", "model not found", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapStatusError("m1", 400, tt.message)

			var tooLong *api.PromptTooLongError
			var status *api.StatusError
			switch {
			case tt.tooLong:
				if !errors.As(err, &tooLong) {
					t.Fatalf("got %T, want PromptTooLongError", err)
				}
				if tooLong.Model != "m1" {
					t.Errorf("Model = %q", tooLong.Model)
				}
			default:
				if !errors.As(err, &status) {
					t.Fatalf("got %T, want StatusError", err)
				}
				if status.StatusCode != 400 {
					t.Errorf("StatusCode = %d, want 400", status.StatusCode)
				}
			}
		})
	}
}

func TestMapStatusErrorPreservesCode(t *testing.T) {
	err := MapStatusError("m1", 422, "unprocessable")
	var status *api.StatusError
	if !errors.As(err, &status) {
		t.Fatalf("got %T, want StatusError", err)
	}
	if status.StatusCode != 422 {
		t.Errorf("StatusCode = %d, want 422", status.StatusCode)
	}
}

func TestMapNetworkError(t *testing.T) {
	urlErr := &url.Error{Op: "Post", URL: "http://backend:8321", Err: errors.New("connection refused")}
	err := MapNetworkError("http://backend:8321", urlErr)

	var connErr *api.ConnectivityError
	if !errors.As(err, &connErr) {
		t.Fatalf("got %T, want ConnectivityError", err)
	}
	if connErr.Backend != "http://backend:8321" {
		t.Errorf("Backend = %q", connErr.Backend)
	}
	if !errors.Is(err, urlErr) {
		t.Error("ConnectivityError should wrap the original error")
	}
}

func TestMapNetworkErrorPropagatesCancellation(t *testing.T) {
	err := MapNetworkError("http://backend", context.Canceled)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	var connErr *api.ConnectivityError
	if errors.As(err, &connErr) {
		t.Fatal("cancellation must not be classified as connectivity failure")
	}
}

func TestMapNetworkErrorNil(t *testing.T) {
	if err := MapNetworkError("http://backend", nil); err != nil {
		t.Fatalf("got %v, want nil", err)
	}
}
