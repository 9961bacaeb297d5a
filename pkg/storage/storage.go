package storage

import (
	"context"
	"time"

	"github.com/tkralik/turnstile/pkg/api"
)

// TurnRecord is the auditable projection of one completed turn, keyed by
// (user, conversation). It is written once and never updated.
type TurnRecord struct {
	UserID         string
	ConversationID string

	Question string
	Response string
	Model    string

	// Topic is a short conversation label, present only on the first turn
	// of a conversation when the client asked for one.
	Topic string

	ReferencedDocuments []api.ReferencedDocument
	ToolCalls           []api.ToolCallSummary
	ToolResults         []api.ToolResultSummary

	StartedAt   time.Time
	CompletedAt time.Time
}

// TurnStore persists turn summaries.
type TurnStore interface {
	// WriteTurnSummary appends the record to the conversation's history.
	WriteTurnSummary(ctx context.Context, rec *TurnRecord) error

	// ConversationExists reports whether the user already has turns
	// recorded under the conversation. The engine uses this to decide
	// whether a turn is the first of its conversation.
	ConversationExists(ctx context.Context, userID, conversationID string) (bool, error)

	// Turns returns the conversation's recorded turns in write order.
	// Returns ErrNotFound when no turns exist.
	Turns(ctx context.Context, userID, conversationID string) ([]*TurnRecord, error)

	// Close releases any underlying resources.
	Close() error
}
