package transport

import (
	"context"
	"fmt"

	"github.com/tkralik/turnstile/pkg/api"
)

// Recovery returns middleware that catches panics in the handler and
// converts them to errors. The server continues to accept new requests
// after a panic is recovered.
func Recovery() Middleware {
	return func(next TurnCreator) TurnCreator {
		return TurnCreatorFunc(func(ctx context.Context, req *api.TurnRequest, w ResponseWriter) (retErr error) {
			defer func() {
				if r := recover(); r != nil {
					retErr = fmt.Errorf("internal server error: %v", r)
				}
			}()
			return next.CreateTurn(ctx, req, w)
		})
	}
}
