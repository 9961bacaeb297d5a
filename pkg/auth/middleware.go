package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tkralik/turnstile/pkg/observability"
	"github.com/tkralik/turnstile/pkg/transport"
)

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}

// Middleware creates HTTP middleware from an AuthChain and optional
// RateLimiter. It checks the bypass list, runs authentication, injects the
// subject into the request context, and optionally enforces rate limits.
func Middleware(chain *AuthChain, limiter RateLimiter, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result := chain.Authenticate(r.Context(), r)

			if result.Decision == No {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", result.Err,
				)
				observability.AuthRejectedTotal.WithLabelValues("unauthenticated").Inc()
				transport.WriteErrorStatus(w, ErrUnauthenticated, http.StatusUnauthorized)
				return
			}

			if result.Decision != Yes || result.Identity == nil {
				transport.WriteErrorStatus(w, ErrUnauthenticated, http.StatusUnauthorized)
				return
			}

			if result.Identity.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				transport.WriteErrorStatus(w, errors.New("internal authentication error"), http.StatusInternalServerError)
				return
			}

			slog.Debug("authentication succeeded",
				"subject", result.Identity.Subject,
				"path", r.URL.Path,
			)

			if limiter != nil {
				if err := limiter.Allow(r.Context(), result.Identity); err != nil {
					slog.Warn("rate limit exceeded", "subject", result.Identity.Subject)
					observability.AuthRejectedTotal.WithLabelValues("rate_limited").Inc()
					transport.WriteErrorStatus(w, ErrTooManyRequests, http.StatusTooManyRequests)
					return
				}
			}

			ctx := SetIdentity(r.Context(), result.Identity)
			ctx = transport.ContextWithUserID(ctx, result.Identity.Subject)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
