package engine

import (
	"context"

	"github.com/tkralik/turnstile/pkg/api"
	"github.com/tkralik/turnstile/pkg/transport"
)

// completeTurn runs a non-streaming turn. Unlike streaming, persistence
// happens before the response leaves the process, so a ledger or store
// failure is surfaced to the client instead of swallowed.
func (e *Engine) completeTurn(ctx context.Context, run *turnRun, w transport.ResponseWriter) error {
	var resp *api.Response

	if run.verdict.Blocked {
		if err := e.recordBlockedTurn(ctx, run); err != nil {
			return err
		}
		resp = blockedResponse(run)
	} else {
		var err error
		resp, err = e.dispatchOnce(ctx, e.providerRequest(run, false))
		if err != nil {
			return err
		}
		resp.ConversationID = run.conversationID
	}

	summary := buildTurnSummary(resp, run.req.KnowledgeSources)

	snapshot, err := e.settleUsage(ctx, run.userID, run.req.Model, resp.Usage)
	if err != nil {
		return err
	}
	resp.AvailableQuotas = snapshot

	if err := e.persistTurn(ctx, run, summary); err != nil {
		return err
	}

	return w.WriteResponse(ctx, resp)
}
