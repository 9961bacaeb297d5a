// Package transport defines the handler interfaces and middleware chain
// for the turnstile HTTP/SSE transport layer.
//
// The transport layer bridges external clients and the turn engine. It
// deserializes incoming requests into api.TurnRequest, dispatches them for
// processing, and serializes results back to the client in either
// synchronous (JSON) or streaming (SSE) format.
//
// # Handler Interface
//
// TurnCreator is the contract between the transport layer and the engine.
// The ResponseWriter interface abstracts streaming and non-streaming
// output, allowing the engine to emit SSE events or a complete JSON
// response without knowing the underlying transport protocol.
//
// # Middleware
//
// The middleware chain wraps TurnCreator with cross-cutting concerns:
// panic recovery, request ID assignment (X-Request-ID), and structured
// logging via log/slog.
package transport
