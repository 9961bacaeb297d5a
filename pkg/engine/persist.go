package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/tkralik/turnstile/pkg/api"
	"github.com/tkralik/turnstile/pkg/provider"
	"github.com/tkralik/turnstile/pkg/storage"
)

// persistTurn writes the turn's summary record. When the turn opens a new
// conversation and the client asked for one, a topic label is generated
// first via an extra backend call that is itself never persisted.
func (e *Engine) persistTurn(ctx context.Context, run *turnRun, summary *api.TurnSummary) error {
	if e.store == nil {
		return nil
	}
	if summary == nil {
		summary = &api.TurnSummary{}
	}

	topic, err := e.topicSummary(ctx, run)
	if err != nil {
		return err
	}

	rec := &storage.TurnRecord{
		UserID:              run.userID,
		ConversationID:      run.conversationID,
		Question:            run.req.Query,
		Response:            summary.ResponseText,
		Model:               run.req.Model,
		Topic:               topic,
		ReferencedDocuments: summary.ReferencedDocuments,
		ToolCalls:           summary.ToolCalls,
		ToolResults:         summary.ToolResults,
		StartedAt:           run.startedAt,
		CompletedAt:         time.Now(),
	}
	if err := e.store.WriteTurnSummary(ctx, rec); err != nil {
		return &api.PersistenceError{Op: "write turn summary", Err: err}
	}
	return nil
}

// topicSummary asks the backend for a short conversation label. It runs
// only on the first turn of a conversation when the client requested one,
// and the call is marked non-persisted so it never appears in history.
func (e *Engine) topicSummary(ctx context.Context, run *turnRun) (string, error) {
	if !run.req.SummarizeTopic {
		return "", nil
	}

	isNew := !run.hadConversation
	if !isNew {
		exists, err := e.store.ConversationExists(ctx, run.userID, run.conversationID)
		if err != nil {
			return "", &api.PersistenceError{Op: "check conversation", Err: err}
		}
		isNew = !exists
	}
	if !isNew {
		return "", nil
	}

	resp, err := e.dispatchOnce(ctx, &provider.Request{
		Model:        run.req.Model,
		Input:        run.req.Query,
		Instructions: e.cfg.topicSummaryPrompt(),
		NoStore:      true,
	})
	if err != nil {
		return "", fmt.Errorf("summarizing topic: %w", err)
	}
	return api.ExtractMessageText(resp.Output), nil
}
