package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"

	"github.com/tkralik/turnstile/pkg/api"
)

// ErrMalformedViolation is returned by RunModeration when the backend
// flagged the input but produced a violation payload that cannot be
// parsed. The policy gate treats it identically to an explicit flag.
var ErrMalformedViolation = errors.New("malformed violation payload in moderation response")

// contextWindowPattern matches backend status messages that indicate the
// prompt exceeded the model's context window. Backends phrase this
// differently (vLLM, OpenAI, llama-stack), so the match is deliberately
// loose.
var contextWindowPattern = regexp.MustCompile(
	`(?i)(prompt .*too long|exceed[s]? .*context|maximum context length|context window|input length .*exceed)`,
)

// MapStatusError classifies a backend status error. A message matching
// the context-window pattern becomes a PromptTooLongError; everything
// else is forwarded as a StatusError with its original status code.
func MapStatusError(model string, statusCode int, message string) error {
	if contextWindowPattern.MatchString(message) {
		return &api.PromptTooLongError{Model: model, Message: message}
	}
	return &api.StatusError{StatusCode: statusCode, Message: message}
}

// MapNetworkError classifies a transport-level failure as a
// ConnectivityError. Context cancellation is not a connectivity failure
// and propagates unchanged.
func MapNetworkError(backend string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return &api.ConnectivityError{Backend: backend, Err: err}
	}

	return fmt.Errorf("backend request failed: %w", err)
}
