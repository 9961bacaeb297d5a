package engine

import (
	"context"
	"time"

	"github.com/tkralik/turnstile/pkg/api"
	"github.com/tkralik/turnstile/pkg/observability"
	"github.com/tkralik/turnstile/pkg/provider"
)

// recordBlockedTurn writes the (user input, refusal) pair into the
// backend's conversation history before anything else happens on a
// blocked turn, so later retrieval reflects the refusal. Turns without
// an existing conversation have no history to extend.
func (e *Engine) recordBlockedTurn(ctx context.Context, run *turnRun) error {
	if !run.hadConversation {
		return nil
	}
	items := []api.Item{
		userMessageItem(run.req.Query),
		*run.verdict.Refusal,
	}
	return e.provider.AppendConversationItems(ctx, run.backendConvID, items)
}

// blockedResponse synthesizes the terminal response of a blocked turn:
// completed status, zero usage, the refusal as its only output item.
func blockedResponse(run *turnRun) *api.Response {
	return &api.Response{
		ID:             api.NewResponseID(),
		Object:         "response",
		CreatedAt:      time.Now().Unix(),
		Status:         api.ResponseStatusCompleted,
		Model:          run.req.Model,
		ConversationID: run.conversationID,
		Output:         []api.Item{*run.verdict.Refusal},
		Usage:          &api.Usage{},
	}
}

// dispatchOnce performs the turn's single non-streaming backend call.
// Failure classification (connectivity, context window, mapped status)
// happens in the provider adapter; this layer only records metrics.
func (e *Engine) dispatchOnce(ctx context.Context, req *provider.Request) (*api.Response, error) {
	start := time.Now()
	resp, err := e.provider.CreateResponse(ctx, req)
	observability.ProviderLatency.WithLabelValues(e.provider.Name(), req.Model).
		Observe(time.Since(start).Seconds())
	if err != nil {
		observability.LLMCallFailuresTotal.WithLabelValues(e.provider.Name(), req.Model).Inc()
		return nil, err
	}
	return resp, nil
}

// openStream opens the turn's single streaming backend call.
func (e *Engine) openStream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	events, err := e.provider.StreamResponse(ctx, req)
	if err != nil {
		observability.LLMCallFailuresTotal.WithLabelValues(e.provider.Name(), req.Model).Inc()
		return nil, err
	}
	return events, nil
}
