// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the turnstile service.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and path.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turnstile_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "path"},
	)

	// RequestDuration records HTTP request duration in seconds by method and path.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "turnstile_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "path"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "turnstile_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// LLMCallsTotal counts inference calls dispatched to the backend.
	// Every admitted turn counts exactly one call, even when the backend
	// reports zero token usage.
	LLMCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turnstile_llm_calls_total",
			Help: "LLM calls",
		},
		[]string{"provider", "model"},
	)

	// LLMCallFailuresTotal counts inference calls that ended in failure.
	LLMCallFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turnstile_llm_calls_failures_total",
			Help: "Failed LLM calls",
		},
		[]string{"provider", "model"},
	)

	// ValidationErrorsTotal counts shield violations (blocked turns).
	ValidationErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "turnstile_llm_calls_validation_errors_total",
			Help: "Shield violations",
		},
	)

	// QuotaRejectedTotal counts turns rejected by a quota limiter before
	// any backend call.
	QuotaRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turnstile_quota_rejected_total",
			Help: "Quota rejections",
		},
		[]string{"limiter"},
	)

	// ProviderTokensTotal counts tokens processed by direction (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turnstile_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// ProviderLatency records backend provider latency in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "turnstile_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// AuthRejectedTotal counts requests rejected by the authentication
	// middleware, labeled by reason (unauthenticated, rate_limited).
	AuthRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turnstile_auth_rejected_total",
			Help: "Authentication rejections",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		LLMCallsTotal,
		LLMCallFailuresTotal,
		ValidationErrorsTotal,
		QuotaRejectedTotal,
		ProviderTokensTotal,
		ProviderLatency,
		AuthRejectedTotal,
	)
}
