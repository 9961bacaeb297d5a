package api

import "fmt"

// The error taxonomy below is what the engine hands the transport layer.
// Each type maps mechanically to an HTTP status; see transport.HTTPStatus.

// ConnectivityError signals that the inference backend was unreachable.
// It is always surfaced and never retried by the engine.
type ConnectivityError struct {
	Backend string
	Err     error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("unable to connect to %s: %v", e.Backend, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// PromptTooLongError signals that the prompt exceeded the model's context
// window, detected by pattern-matching the backend status error.
type PromptTooLongError struct {
	Model   string
	Message string
}

func (e *PromptTooLongError) Error() string {
	return fmt.Sprintf("prompt exceeds context window of model %s: %s", e.Model, e.Message)
}

// QuotaExceededError is raised by the policy gate before any backend call
// when a limiter reports no remaining budget.
type QuotaExceededError struct {
	Subject     string
	SubjectType string // "user" or "cluster"
	Available   int64
}

func (e *QuotaExceededError) Error() string {
	switch e.SubjectType {
	case "user":
		return fmt.Sprintf("user %s has no available tokens", e.Subject)
	case "cluster":
		return "cluster has no available tokens"
	default:
		return fmt.Sprintf("subject %s has no available tokens", e.Subject)
	}
}

// ShieldIntegrityError signals a configuration defect: a configured shield
// has no backing model in the provider catalog. It is raised immediately
// and is not a moderation outcome.
type ShieldIntegrityError struct {
	ShieldID string
	Model    string
}

func (e *ShieldIntegrityError) Error() string {
	return fmt.Sprintf("shield %s references unknown model %q", e.ShieldID, e.Model)
}

// StatusError carries a backend status error that matched no known
// pattern. The transport layer forwards the status code as-is.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// PersistenceError wraps a failed durable write. It is logged and swallowed
// on the streaming path (bytes already sent) and surfaced on the
// non-streaming path.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
