package lls

import "time"

// Config holds configuration for the lls provider adapter.
type Config struct {
	// BaseURL is the backend URL (e.g., "http://localhost:8321").
	BaseURL string

	// APIKey for backend authentication (optional).
	APIKey string

	// Timeout for individual HTTP requests. Defaults to 120s. Streaming
	// requests are exempt; they are bounded by the caller's context.
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Timeout: 120 * time.Second,
	}
}
