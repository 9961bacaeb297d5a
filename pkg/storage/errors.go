package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a conversation has no recorded turns.
	ErrNotFound = errors.New("conversation not found")
)
