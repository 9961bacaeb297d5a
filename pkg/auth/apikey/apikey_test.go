package apikey

import (
	"context"
	"net/http"
	"testing"

	"github.com/tkralik/turnstile/pkg/auth"
)

func newTestAuth() *Authenticator {
	return New([]RawKeyEntry{
		{
			Key: "sk-test-key-1",
			Identity: auth.Identity{
				Subject:  "alice",
				Metadata: map[string]string{"team": "platform"},
			},
		},
		{
			Key: "sk-test-key-2",
			Identity: auth.Identity{
				Subject: "bob",
			},
		},
	})
}

func TestValidKey(t *testing.T) {
	a := newTestAuth()
	r, _ := http.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer sk-test-key-1")

	result := a.Authenticate(context.Background(), r)

	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes", result.Decision)
	}
	if result.Identity.Subject != "alice" {
		t.Errorf("Subject = %q, want %q", result.Identity.Subject, "alice")
	}
	if result.Identity.Metadata["team"] != "platform" {
		t.Errorf("Metadata[team] = %q, want %q", result.Identity.Metadata["team"], "platform")
	}
}

func TestInvalidKey(t *testing.T) {
	a := newTestAuth()
	r, _ := http.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer sk-wrong-key")

	result := a.Authenticate(context.Background(), r)

	if result.Decision != auth.No {
		t.Fatalf("Decision = %d, want No", result.Decision)
	}
}

func TestNoHeader(t *testing.T) {
	a := newTestAuth()
	r, _ := http.NewRequest("GET", "/", nil)

	result := a.Authenticate(context.Background(), r)

	if result.Decision != auth.Abstain {
		t.Fatalf("Decision = %d, want Abstain", result.Decision)
	}
}

func TestNonBearerHeader(t *testing.T) {
	a := newTestAuth()
	r, _ := http.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	result := a.Authenticate(context.Background(), r)

	if result.Decision != auth.Abstain {
		t.Fatalf("Decision = %d, want Abstain (non-Bearer)", result.Decision)
	}
}

func TestEmptyBearerToken(t *testing.T) {
	a := newTestAuth()
	r, _ := http.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer ")

	result := a.Authenticate(context.Background(), r)

	if result.Decision != auth.No {
		t.Fatalf("Decision = %d, want No (empty token)", result.Decision)
	}
}

func TestSecondKey(t *testing.T) {
	a := newTestAuth()
	r, _ := http.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer sk-test-key-2")

	result := a.Authenticate(context.Background(), r)

	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes", result.Decision)
	}
	if result.Identity.Subject != "bob" {
		t.Errorf("Subject = %q, want %q", result.Identity.Subject, "bob")
	}
}
