package transport

import (
	"context"

	"github.com/tkralik/turnstile/pkg/api"
)

// TurnCreator handles the core create-turn operation. The implementation
// receives a normalized turn request and writes the result (streaming
// events or a complete response) to the ResponseWriter.
type TurnCreator interface {
	CreateTurn(ctx context.Context, req *api.TurnRequest, w ResponseWriter) error
}

// TurnCreatorFunc is an adapter that allows using an ordinary function
// as a TurnCreator.
type TurnCreatorFunc func(ctx context.Context, req *api.TurnRequest, w ResponseWriter) error

// CreateTurn calls f(ctx, req, w).
func (f TurnCreatorFunc) CreateTurn(ctx context.Context, req *api.TurnRequest, w ResponseWriter) error {
	return f(ctx, req, w)
}

// ResponseWriter abstracts streaming and non-streaming output for the
// engine. The transport layer creates a ResponseWriter for each request.
//
// WriteEvent and WriteResponse are mutually exclusive on a single writer
// instance. Calling WriteEvent after a terminal event also returns an
// error; the writer emits the [DONE] sentinel itself after the terminal
// event.
type ResponseWriter interface {
	// WriteEvent sends a single streaming event. Returns an error if
	// called after a terminal event has been sent or after WriteResponse
	// was called.
	WriteEvent(ctx context.Context, event api.WireEvent) error

	// WriteResponse sends a complete non-streaming response. Returns an
	// error if called after WriteEvent was called on this writer.
	WriteResponse(ctx context.Context, resp *api.Response) error

	// Flush ensures buffered data is sent to the client. Returns an
	// error if the client has disconnected.
	Flush() error
}
