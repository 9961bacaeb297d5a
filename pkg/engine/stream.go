package engine

import (
	"context"
	"fmt"

	"github.com/tkralik/turnstile/pkg/api"
	"github.com/tkralik/turnstile/pkg/transport"
)

// transcoder relays backend events 1:1 into the outward wire protocol.
// It enforces the lifecycle ordering (created first, exactly one terminal
// event, nothing after), stamps the canonical conversation id onto every
// event, and correlates partial MCP tool calls between their item-added
// and arguments-done events.
type transcoder struct {
	run    *turnRun
	writer transport.ResponseWriter

	seq   int
	phase api.StreamPhase

	// mcpCalls correlates mcp_call items by output index between
	// output_item.added and arguments.done; entries are deleted on
	// consumption so nothing leaks across turns.
	mcpCalls map[int]mcpCallScratch

	pendingCalls   []api.ToolCallSummary
	pendingResults []api.ToolResultSummary

	summary  *api.TurnSummary
	terminal *api.Response
}

// mcpCallScratch holds what arguments.done needs from the earlier
// output_item.added event.
type mcpCallScratch struct {
	itemID string
	name   string
}

func newTranscoder(run *turnRun, w transport.ResponseWriter) *transcoder {
	return &transcoder{
		run:      run,
		writer:   w,
		phase:    api.PhaseIdle,
		mcpCalls: make(map[int]mcpCallScratch),
	}
}

// relay validates, stamps, and writes one wire event.
func (t *transcoder) relay(ctx context.Context, ev api.WireEvent) error {
	if err := api.ValidatePhaseTransition(t.phase, ev.Type); err != nil {
		return err
	}

	ev.SequenceNumber = t.seq
	t.seq++
	ev.ConversationID = t.run.conversationID
	if ev.Response != nil {
		ev.Response.ConversationID = t.run.conversationID
	}

	if err := t.writer.WriteEvent(ctx, ev); err != nil {
		return err
	}

	if ev.Type.Terminal() {
		t.phase = api.PhaseTerminal
	} else if t.phase == api.PhaseIdle {
		t.phase = api.PhaseCreated
	} else {
		t.phase = api.PhaseInProgress
	}
	return nil
}

// streamTurn drives a streaming turn end to end: blocked turns emit a
// fixed synthesized sequence, live turns relay the backend stream. In
// both cases quota settlement happens on exactly the terminal event,
// extraction strictly after it is relayed, and persistence last.
func (e *Engine) streamTurn(ctx context.Context, run *turnRun, w transport.ResponseWriter) error {
	t := newTranscoder(run, w)

	if run.verdict.Blocked {
		if err := e.recordBlockedTurn(ctx, run); err != nil {
			return err
		}
		if err := e.streamBlocked(ctx, run, t); err != nil {
			return err
		}
	} else {
		if err := e.streamLive(ctx, run, t); err != nil {
			if isClientGone(ctx, err) {
				e.logger.Debug("client disconnected mid-stream",
					"conversation_id", run.conversationID)
				return nil
			}
			return err
		}
	}

	// Only turns that reached their terminal event are recorded.
	if t.terminal == nil {
		return nil
	}

	// The client-visible protocol is complete; persistence is best-effort
	// and can never roll back bytes already sent.
	if err := e.persistTurn(ctx, run, t.summary); err != nil {
		e.logger.Error("turn persistence failed",
			"conversation_id", run.conversationID, "error", err)
	}
	return nil
}

// streamBlocked emits the fixed blocked sequence: created, item-added,
// item-done, completed. The writer appends the end marker after the
// terminal event.
func (e *Engine) streamBlocked(ctx context.Context, run *turnRun, t *transcoder) error {
	resp := blockedResponse(run)
	refusal := run.verdict.Refusal

	inProgress := *resp
	inProgress.Status = api.ResponseStatusInProgress
	inProgress.Output = nil

	if err := t.relay(ctx, api.WireEvent{Type: api.EventResponseCreated, Response: &inProgress}); err != nil {
		return err
	}
	if err := t.relay(ctx, api.WireEvent{
		Type: api.EventOutputItemAdded, Item: refusal, ItemID: refusal.ID,
	}); err != nil {
		return err
	}
	if err := t.relay(ctx, api.WireEvent{
		Type: api.EventOutputItemDone, Item: refusal, ItemID: refusal.ID,
	}); err != nil {
		return err
	}

	snapshot, err := e.settleUsage(ctx, run.userID, run.req.Model, resp.Usage)
	if err != nil {
		return err
	}

	if err := t.relay(ctx, api.WireEvent{
		Type:            api.EventResponseCompleted,
		Response:        resp,
		AvailableQuotas: snapshot,
	}); err != nil {
		return err
	}

	t.terminal = resp
	t.summary = buildTurnSummary(resp, run.req.KnowledgeSources)
	return nil
}

// streamLive opens the single backend stream and relays it in arrival
// order. Terminal-only work (settlement, snapshot, extraction) runs once
// the terminal event has actually arrived, so a mid-stream disconnect
// never triggers it.
func (e *Engine) streamLive(ctx context.Context, run *turnRun, t *transcoder) error {
	events, err := e.openStream(ctx, e.providerRequest(run, true))
	if err != nil {
		return err
	}

	for ev := range events {
		if ev.Err != nil {
			return ev.Err
		}

		wire := api.WireEvent{
			Type:         ev.Type,
			Response:     ev.Response,
			Item:         ev.Item,
			ItemID:       ev.ItemID,
			OutputIndex:  ev.OutputIndex,
			ContentIndex: ev.ContentIndex,
			Delta:        ev.Delta,
			Arguments:    ev.Arguments,
		}

		if wire.Type.Terminal() {
			var usage *api.Usage
			if wire.Response != nil {
				usage = wire.Response.Usage
			}
			snapshot, err := e.settleUsage(ctx, run.userID, run.req.Model, usage)
			if err != nil {
				return err
			}
			wire.AvailableQuotas = snapshot

			if err := t.relay(ctx, wire); err != nil {
				return err
			}

			// Extraction runs strictly after the terminal relay.
			t.terminal = wire.Response
			t.summary = buildTurnSummary(wire.Response, run.req.KnowledgeSources)
			t.mergeScratchSummaries()
			return nil
		}

		t.observe(&wire)
		if err := t.relay(ctx, wire); err != nil {
			return err
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("backend stream ended without a terminal event")
}

// observe tracks interior events the extractor cannot reconstruct from
// the terminal snapshot alone: MCP calls whose arguments stream in
// separately from their item events.
func (t *transcoder) observe(ev *api.WireEvent) {
	switch ev.Type {
	case api.EventOutputItemAdded:
		if ev.Item != nil && ev.Item.Type == api.ItemTypeMCPCall && ev.Item.MCPCall != nil {
			t.mcpCalls[ev.OutputIndex] = mcpCallScratch{
				itemID: ev.Item.ID,
				name:   ev.Item.MCPCall.Name,
			}
		}

	case api.EventMCPCallArgsDone:
		scratch, ok := t.mcpCalls[ev.OutputIndex]
		if !ok {
			return
		}
		delete(t.mcpCalls, ev.OutputIndex)
		t.pendingCalls = append(t.pendingCalls, api.ToolCallSummary{
			ID:   scratch.itemID,
			Name: scratch.name,
			Args: parseArguments(ev.Arguments),
			Type: string(api.ItemTypeMCPCall),
		})

	case api.EventOutputItemDone:
		if ev.Item != nil && ev.Item.Type == api.ItemTypeMCPCall {
			if result := buildMCPResult(ev.Item); result != nil {
				t.pendingResults = append(t.pendingResults, *result)
			}
		}
	}
}

// mergeScratchSummaries folds stream-observed MCP summaries into the
// terminal extraction, skipping ids the terminal snapshot already covers.
func (t *transcoder) mergeScratchSummaries() {
	if t.summary == nil {
		return
	}

	have := make(map[string]bool, len(t.summary.ToolCalls))
	for _, call := range t.summary.ToolCalls {
		have[call.ID] = true
	}
	for _, call := range t.pendingCalls {
		if !have[call.ID] {
			t.summary.ToolCalls = append(t.summary.ToolCalls, call)
		}
	}

	haveResults := make(map[string]bool, len(t.summary.ToolResults))
	for _, result := range t.summary.ToolResults {
		haveResults[result.ID] = true
	}
	for _, result := range t.pendingResults {
		if !haveResults[result.ID] {
			t.summary.ToolResults = append(t.summary.ToolResults, result)
		}
	}
}
