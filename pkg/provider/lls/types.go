package lls

import "github.com/tkralik/turnstile/pkg/api"

// --- Request types ---

// responsesRequest is the wire format for POST /v1/responses.
type responsesRequest struct {
	Model        string `json:"model"`
	Input        string `json:"input"`
	Instructions string `json:"instructions,omitempty"`
	Conversation string `json:"conversation,omitempty"`
	Tools        []tool `json:"tools,omitempty"`
	Stream       bool   `json:"stream,omitempty"`
	Store        bool   `json:"store"`
}

// tool is a tool attachment in the Responses API format. File-search
// tools carry vector store ids; MCP tools carry the server coordinates.
type tool struct {
	Type           string            `json:"type"`
	VectorStoreIDs []string          `json:"vector_store_ids,omitempty"`
	ServerLabel    string            `json:"server_label,omitempty"`
	ServerURL      string            `json:"server_url,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
}

// appendItemsRequest is the wire format for POST /v1/conversations/{id}/items.
type appendItemsRequest struct {
	Items []api.Item `json:"items"`
}

// --- Catalog types ---

// listEnvelope wraps paginated list endpoints (/v1/models, /v1/shields).
type listEnvelope[T any] struct {
	Data []T `json:"data"`
}

// --- Moderation types ---

// moderationRequest is the wire format for POST /v1/moderations.
type moderationRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

// moderationResponse is the backend's moderation verdict.
type moderationResponse struct {
	ID      string             `json:"id"`
	Results []moderationResult `json:"results"`
}

type moderationResult struct {
	Flagged     bool            `json:"flagged"`
	Categories  map[string]bool `json:"categories"`
	UserMessage string          `json:"user_message,omitempty"`
}

// --- Error types ---

// errorEnvelope is the backend's error body shape. Some deployments nest
// the message under "error", others return it flat.
type errorEnvelope struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func (e *errorEnvelope) text() string {
	if e.Error != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Detail
}
