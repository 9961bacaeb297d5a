package provider

import (
	"context"

	"github.com/tkralik/turnstile/pkg/api"
)

// Provider abstracts a model inference backend.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "lls").
	Name() string

	// CreateResponse performs non-streaming inference and returns the
	// backend's complete terminal response.
	CreateResponse(ctx context.Context, req *Request) (*api.Response, error)

	// StreamResponse performs streaming inference. The returned channel
	// receives Event values in backend arrival order and is closed by the
	// provider when the stream completes or errors.
	StreamResponse(ctx context.Context, req *Request) (<-chan Event, error)

	// ListModels returns available models from the backend.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// ListShields returns the safety shields configured on the backend.
	ListShields(ctx context.Context) ([]ShieldInfo, error)

	// RunModeration evaluates input text against the shield's backing
	// model. Returns ErrMalformedViolation when the backend flags the
	// input but the violation payload cannot be parsed.
	RunModeration(ctx context.Context, model, input string) (*ModerationResult, error)

	// AppendConversationItems adds items to the backend's durable
	// conversation history without running inference.
	AppendConversationItems(ctx context.Context, conversationID string, items []api.Item) error

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}

// Request is the backend-facing turn request. It contains only what the
// provider needs, stripped of transport and persistence concerns.
type Request struct {
	// Model is the backend model identifier.
	Model string

	// Input is the user's query text.
	Input string

	// Instructions is the resolved system prompt, empty when none applies.
	Instructions string

	// ConversationID is the backend-format conversation identifier
	// (api.ToBackendConversationID). Empty for unassociated turns.
	ConversationID string

	// KnowledgeSources lists vector store ids attached as file-search
	// tools.
	KnowledgeSources []string

	// MCPServers lists MCP tool servers attached to the turn.
	MCPServers []MCPServer

	// Stream selects streaming (SSE) or one-shot inference.
	Stream bool

	// NoStore asks the backend not to retain the exchange. Used for
	// auxiliary calls (topic summaries) that must not pollute
	// conversation history.
	NoStore bool
}

// MCPServer attaches a Model Context Protocol server as a tool source.
type MCPServer struct {
	Label   string
	URL     string
	Headers map[string]string
}
