package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tkralik/turnstile/pkg/api"
	"github.com/tkralik/turnstile/pkg/observability"
	"github.com/tkralik/turnstile/pkg/transport"
)

// Adapter serves the query API over HTTP. It routes requests to the
// turn engine and serializes responses as JSON or SSE.
type Adapter struct {
	creator transport.TurnCreator
	mux     *http.ServeMux
	config  Config

	readiness []readinessCheck
}

// readinessCheck is a named dependency probe run by the readiness endpoint.
type readinessCheck struct {
	name  string
	check func(context.Context) error
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	Addr        string
	MaxBodySize int64

	// MetricsDisabled turns off the Prometheus endpoint.
	MetricsDisabled bool

	// MetricsPath is the metrics endpoint path (default: "/metrics").
	MetricsPath string
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		MaxBodySize: 1 << 20, // 1 MB
		MetricsPath: "/metrics",
	}
}

// NewAdapter creates an HTTP adapter around the given TurnCreator.
// Middleware is applied to the TurnCreator in the given order.
func NewAdapter(creator transport.TurnCreator, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		creator = transport.Chain(middlewares...)(creator)
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = DefaultConfig().MetricsPath
	}

	a := &Adapter{
		creator: creator,
		mux:     http.NewServeMux(),
		config:  cfg,
	}

	a.mux.HandleFunc("POST /v1/query", a.handleQuery)
	a.mux.HandleFunc("POST /v1/streaming_query", a.handleStreamingQuery)
	a.mux.HandleFunc("GET /healthz", a.handleLiveness)
	a.mux.HandleFunc("GET /readyz", a.handleReadiness)
	if !cfg.MetricsDisabled {
		a.mux.Handle("GET "+cfg.MetricsPath, promhttp.Handler())
	}

	return a
}

// AddReadinessCheck registers a named dependency probe. The readiness
// endpoint reports unhealthy when any probe fails.
func (a *Adapter) AddReadinessCheck(name string, check func(context.Context) error) {
	a.readiness = append(a.readiness, readinessCheck{name: name, check: check})
}

// Handler returns the http.Handler for this adapter. The returned handler
// includes HTTP-level middleware for request metrics and request ID
// propagation.
func (a *Adapter) Handler() http.Handler {
	return observability.MetricsMiddleware(httpRequestIDMiddleware(a.mux))
}

// httpRequestIDMiddleware propagates the X-Request-ID header. A client
// supplied id is forwarded into the context; either way the final id is
// echoed back on the response before the first write.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Request-ID"); id != "" {
			ctx := transport.ContextWithRequestID(r.Context(), id)
			r = r.WithContext(ctx)
		}
		rw := &requestIDResponseWriter{ResponseWriter: w, r: r}
		next.ServeHTTP(rw, r)
	})
}

// requestIDResponseWriter wraps http.ResponseWriter to inject the
// X-Request-ID header before the first write.
type requestIDResponseWriter struct {
	http.ResponseWriter
	r           *http.Request
	headersSent bool
}

func (w *requestIDResponseWriter) WriteHeader(statusCode int) {
	w.ensureRequestIDHeader()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *requestIDResponseWriter) Write(b []byte) (int, error) {
	w.ensureRequestIDHeader()
	return w.ResponseWriter.Write(b)
}

func (w *requestIDResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *requestIDResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *requestIDResponseWriter) ensureRequestIDHeader() {
	if w.headersSent {
		return
	}
	w.headersSent = true
	if id := transport.RequestIDFromContext(w.r.Context()); id != "" {
		w.ResponseWriter.Header().Set("X-Request-ID", id)
	}
}

// decodeTurnRequest validates and decodes the request body into a
// TurnRequest. On failure it writes the error response and returns false.
func (a *Adapter) decodeTurnRequest(w http.ResponseWriter, r *http.Request) (*api.TurnRequest, bool) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "application/json") {
		transport.WriteErrorStatus(w,
			errors.New("Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return nil, false
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorStatus(w,
				fmt.Errorf("request body too large (max %d bytes)", a.config.MaxBodySize),
				http.StatusRequestEntityTooLarge,
			)
			return nil, false
		}
		transport.WriteErrorStatus(w,
			fmt.Errorf("invalid JSON: %w", err),
			http.StatusBadRequest,
		)
		return nil, false
	}

	if req.Query == "" {
		transport.WriteErrorStatus(w,
			errors.New("query must not be empty"),
			http.StatusBadRequest,
		)
		return nil, false
	}

	return &req, true
}

// handleQuery handles POST /v1/query (non-streaming).
func (a *Adapter) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeTurnRequest(w, r)
	if !ok {
		return
	}
	req.Stream = false

	rw := newSSEResponseWriter(w)
	if err := a.creator.CreateTurn(r.Context(), req, rw); err != nil {
		a.writeHandlerError(w, rw, err)
	}
}

// handleStreamingQuery handles POST /v1/streaming_query (SSE).
func (a *Adapter) handleStreamingQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeTurnRequest(w, r)
	if !ok {
		return
	}
	req.Stream = true

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	rw := newSSEResponseWriter(w)
	if err := a.creator.CreateTurn(ctx, req, rw); err != nil {
		a.writeHandlerError(w, rw, err)
	}
}

// handleLiveness handles GET /healthz.
func (a *Adapter) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleReadiness handles GET /readyz. It runs every registered
// dependency probe and reports the first failure.
func (a *Adapter) handleReadiness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	for _, probe := range a.readiness {
		if err := probe.check(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "unavailable",
				"reason": probe.name + ": " + err.Error(),
			})
			return
		}
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// writeHandlerError writes an error from the turn handler. If streaming
// has already started, it sends a response.failed event so the client
// sees a well-formed stream. Otherwise it writes a JSON error response
// with the status code derived from the error type.
func (a *Adapter) writeHandlerError(w http.ResponseWriter, rw *sseResponseWriter, err error) {
	if rw.hasStartedStreaming() {
		failEvent := api.WireEvent{
			Type: api.EventResponseFailed,
			Response: &api.Response{
				Status: api.ResponseStatusFailed,
				Error:  &api.ResponseError{Message: err.Error()},
			},
		}
		rw.WriteEvent(context.Background(), failEvent)
		return
	}

	transport.WriteError(w, err)
}
