package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/tkralik/turnstile/pkg/api"
)

// Logging returns middleware that emits structured log entries for each
// turn. The log entry includes request ID (from context), model,
// conversation, stream flag, duration, and whether the turn succeeded.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next TurnCreator) TurnCreator {
		return TurnCreatorFunc(func(ctx context.Context, req *api.TurnRequest, w ResponseWriter) error {
			start := time.Now()
			requestID := RequestIDFromContext(ctx)

			err := next.CreateTurn(ctx, req, w)

			attrs := []slog.Attr{
				slog.String("request_id", requestID),
				slog.String("model", req.Model),
				slog.String("conversation_id", req.ConversationID),
				slog.Bool("stream", req.Stream),
				slog.Duration("duration", time.Since(start)),
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "turn failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "turn completed", attrs...)
			}

			return err
		})
	}
}
