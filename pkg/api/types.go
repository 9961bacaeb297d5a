package api

import (
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ---------------------------------------------------------------------------
// Turn request
// ---------------------------------------------------------------------------

// TurnRequest is a normalized chat turn as handed to the engine by the
// transport layer. Authentication and authorization have already happened;
// the engine only needs the content and routing hints.
type TurnRequest struct {
	Query            string   `json:"query"`
	Model            string   `json:"model,omitempty"`
	ConversationID   string   `json:"conversation_id,omitempty"`
	SystemPrompt     string   `json:"system_prompt,omitempty"`
	KnowledgeSources []string `json:"knowledge_sources,omitempty"`
	Stream           bool     `json:"stream,omitempty"`
	SummarizeTopic   bool     `json:"summarize_topic,omitempty"`
}

// ---------------------------------------------------------------------------
// Content types
// ---------------------------------------------------------------------------

// MessageRole represents the role of a message sender.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// ContentPart is one fragment of message content. The Type field selects
// which payload field carries the data: input_text and output_text use
// Text, refusal uses Refusal.
type ContentPart struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Refusal string `json:"refusal,omitempty"`
}

const (
	ContentTypeInputText  = "input_text"
	ContentTypeOutputText = "output_text"
	ContentTypeRefusal    = "refusal"
)

// ---------------------------------------------------------------------------
// Output item tagged union
// ---------------------------------------------------------------------------

// ItemType discriminates the output-item union.
type ItemType string

const (
	ItemTypeMessage             ItemType = "message"
	ItemTypeFunctionCall        ItemType = "function_call"
	ItemTypeFileSearchCall      ItemType = "file_search_call"
	ItemTypeWebSearchCall       ItemType = "web_search_call"
	ItemTypeMCPCall             ItemType = "mcp_call"
	ItemTypeMCPListTools        ItemType = "mcp_list_tools"
	ItemTypeMCPApprovalRequest  ItemType = "mcp_approval_request"
	ItemTypeMCPApprovalResponse ItemType = "mcp_approval_response"
)

// ItemStatus represents the processing status of an item.
type ItemStatus string

const (
	ItemStatusInProgress ItemStatus = "in_progress"
	ItemStatusIncomplete ItemStatus = "incomplete"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
)

// MessageData holds the data specific to a message item.
type MessageData struct {
	Role    MessageRole   `json:"role"`
	Content []ContentPart `json:"content"`
}

// FunctionCallData holds the data specific to a function_call item.
type FunctionCallData struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// FileSearchResult is one retrieved chunk inside a file_search_call item.
type FileSearchResult struct {
	FileID     string         `json:"file_id,omitempty"`
	Filename   string         `json:"filename,omitempty"`
	Text       string         `json:"text"`
	Score      float64        `json:"score"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// FileSearchCallData holds the data specific to a file_search_call item.
// Results is nil when the backend did not include retrieval results.
type FileSearchCallData struct {
	Queries []string           `json:"queries"`
	Results []FileSearchResult `json:"results,omitempty"`
}

// WebSearchCallData holds the data specific to a web_search_call item.
// The backend exposes no payload beyond the item status.
type WebSearchCallData struct{}

// MCPCallData holds the data specific to an mcp_call item. Error is set
// when the remote tool invocation failed; Output carries the tool result
// otherwise.
type MCPCallData struct {
	Name        string `json:"name"`
	ServerLabel string `json:"server_label,omitempty"`
	Arguments   string `json:"arguments"`
	Output      string `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
}

// MCPListToolsData holds the data specific to an mcp_list_tools item.
// The tool catalog is carried in MCP wire shape.
type MCPListToolsData struct {
	ServerLabel string      `json:"server_label"`
	Tools       []*mcp.Tool `json:"tools"`
}

// MCPApprovalRequestData holds the data specific to an mcp_approval_request item.
type MCPApprovalRequestData struct {
	Name        string `json:"name"`
	ServerLabel string `json:"server_label,omitempty"`
	Arguments   string `json:"arguments"`
}

// MCPApprovalResponseData holds the data specific to an mcp_approval_response item.
type MCPApprovalResponseData struct {
	ApprovalRequestID string `json:"approval_request_id"`
	Approve           bool   `json:"approve"`
	Reason            string `json:"reason,omitempty"`
}

// Item is a single entry of a response's output array. Exactly one of the
// type-specific pointers is set for known kinds; unrecognized kinds keep
// their raw JSON so they can be re-emitted verbatim.
type Item struct {
	ID     string     `json:"id"`
	Type   ItemType   `json:"type"`
	Status ItemStatus `json:"status,omitempty"`

	Message             *MessageData             `json:"-"`
	FunctionCall        *FunctionCallData        `json:"-"`
	FileSearchCall      *FileSearchCallData      `json:"-"`
	WebSearchCall       *WebSearchCallData       `json:"-"`
	MCPCall             *MCPCallData             `json:"-"`
	MCPListTools        *MCPListToolsData        `json:"-"`
	MCPApprovalRequest  *MCPApprovalRequestData  `json:"-"`
	MCPApprovalResponse *MCPApprovalResponseData `json:"-"`

	Raw json.RawMessage `json:"-"`
}

// itemWireBase contains fields common to all item kinds on the wire.
type itemWireBase struct {
	ID     string     `json:"id"`
	Type   ItemType   `json:"type"`
	Status ItemStatus `json:"status,omitempty"`
}

// MarshalJSON serializes an Item to the flat wire format: type-specific
// fields at the top level next to id/type/status.
func (item Item) MarshalJSON() ([]byte, error) {
	base := itemWireBase{ID: item.ID, Type: item.Type, Status: item.Status}

	switch item.Type {
	case ItemTypeMessage:
		return json.Marshal(struct {
			itemWireBase
			Role    MessageRole   `json:"role"`
			Content []ContentPart `json:"content"`
		}{base, roleOf(item.Message), contentOf(item.Message)})

	case ItemTypeFunctionCall:
		w := struct {
			itemWireBase
			*FunctionCallData
		}{base, item.FunctionCall}
		if w.FunctionCallData == nil {
			w.FunctionCallData = &FunctionCallData{}
		}
		return json.Marshal(w)

	case ItemTypeFileSearchCall:
		w := struct {
			itemWireBase
			*FileSearchCallData
		}{base, item.FileSearchCall}
		if w.FileSearchCallData == nil {
			w.FileSearchCallData = &FileSearchCallData{}
		}
		return json.Marshal(w)

	case ItemTypeWebSearchCall:
		return json.Marshal(base)

	case ItemTypeMCPCall:
		w := struct {
			itemWireBase
			*MCPCallData
		}{base, item.MCPCall}
		if w.MCPCallData == nil {
			w.MCPCallData = &MCPCallData{}
		}
		return json.Marshal(w)

	case ItemTypeMCPListTools:
		w := struct {
			itemWireBase
			*MCPListToolsData
		}{base, item.MCPListTools}
		if w.MCPListToolsData == nil {
			w.MCPListToolsData = &MCPListToolsData{Tools: []*mcp.Tool{}}
		}
		return json.Marshal(w)

	case ItemTypeMCPApprovalRequest:
		w := struct {
			itemWireBase
			*MCPApprovalRequestData
		}{base, item.MCPApprovalRequest}
		if w.MCPApprovalRequestData == nil {
			w.MCPApprovalRequestData = &MCPApprovalRequestData{}
		}
		return json.Marshal(w)

	case ItemTypeMCPApprovalResponse:
		w := struct {
			itemWireBase
			*MCPApprovalResponseData
		}{base, item.MCPApprovalResponse}
		if w.MCPApprovalResponseData == nil {
			w.MCPApprovalResponseData = &MCPApprovalResponseData{}
		}
		return json.Marshal(w)

	default:
		if len(item.Raw) > 0 {
			return item.Raw, nil
		}
		return json.Marshal(base)
	}
}

func roleOf(m *MessageData) MessageRole {
	if m == nil {
		return ""
	}
	return m.Role
}

func contentOf(m *MessageData) []ContentPart {
	if m == nil || m.Content == nil {
		return []ContentPart{}
	}
	return m.Content
}

// UnmarshalJSON deserializes an Item from the flat wire format. Unknown
// kinds are preserved verbatim in Raw and never fail.
func (item *Item) UnmarshalJSON(data []byte) error {
	var base itemWireBase
	if err := json.Unmarshal(data, &base); err != nil {
		return err
	}
	item.ID = base.ID
	item.Type = base.Type
	item.Status = base.Status

	switch base.Type {
	case ItemTypeMessage:
		var w struct {
			Role    MessageRole     `json:"role"`
			Content json.RawMessage `json:"content"`
		}
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		msg := &MessageData{Role: w.Role}
		if len(w.Content) > 0 {
			// Content may be a bare string or a part array.
			var s string
			if err := json.Unmarshal(w.Content, &s); err == nil {
				msg.Content = []ContentPart{{Type: ContentTypeOutputText, Text: s}}
			} else {
				var parts []ContentPart
				if err := json.Unmarshal(w.Content, &parts); err != nil {
					return err
				}
				msg.Content = parts
			}
		}
		item.Message = msg

	case ItemTypeFunctionCall:
		var d FunctionCallData
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		item.FunctionCall = &d

	case ItemTypeFileSearchCall:
		var d FileSearchCallData
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		item.FileSearchCall = &d

	case ItemTypeWebSearchCall:
		item.WebSearchCall = &WebSearchCallData{}

	case ItemTypeMCPCall:
		var d MCPCallData
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		item.MCPCall = &d

	case ItemTypeMCPListTools:
		var d MCPListToolsData
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		item.MCPListTools = &d

	case ItemTypeMCPApprovalRequest:
		var d MCPApprovalRequestData
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		item.MCPApprovalRequest = &d

	case ItemTypeMCPApprovalResponse:
		var d MCPApprovalResponseData
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		item.MCPApprovalResponse = &d

	default:
		item.Raw = append(json.RawMessage(nil), data...)
	}

	return nil
}

// ---------------------------------------------------------------------------
// Response snapshot
// ---------------------------------------------------------------------------

// ResponseStatus represents the overall status of a response.
type ResponseStatus string

const (
	ResponseStatusInProgress ResponseStatus = "in_progress"
	ResponseStatusCompleted  ResponseStatus = "completed"
	ResponseStatusIncomplete ResponseStatus = "incomplete"
	ResponseStatusFailed     ResponseStatus = "failed"
)

// Terminal reports whether the status ends a response lifecycle.
func (s ResponseStatus) Terminal() bool {
	switch s {
	case ResponseStatusCompleted, ResponseStatusIncomplete, ResponseStatusFailed:
		return true
	}
	return false
}

// Usage holds token usage for a response. A nil *Usage means the backend
// reported nothing; a zero-valued Usage means it reported zeros. The two
// are accounted identically.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// IncompleteDetails explains why a response is incomplete.
type IncompleteDetails struct {
	Reason string `json:"reason,omitempty"`
}

// ResponseError is the error payload embedded in a failed response snapshot.
type ResponseError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Response is the snapshot of one backend response as carried by wire
// events and returned on the non-streaming path.
type Response struct {
	ID                string             `json:"id"`
	Object            string             `json:"object"`
	CreatedAt         int64              `json:"created_at"`
	Status            ResponseStatus     `json:"status"`
	Model             string             `json:"model"`
	ConversationID    string             `json:"conversation_id,omitempty"`
	Output            []Item             `json:"output"`
	Usage             *Usage             `json:"usage,omitempty"`
	Error             *ResponseError     `json:"error,omitempty"`
	IncompleteDetails *IncompleteDetails `json:"incomplete_details,omitempty"`

	// AvailableQuotas carries the post-accounting quota snapshot on the
	// non-streaming path. Streaming turns carry it on the terminal wire
	// event instead.
	AvailableQuotas map[string]int64 `json:"available_quotas,omitempty"`
}

// OutputText concatenates the text and refusal fragments of every
// assistant message item, separated by single spaces. Non-message items
// and user messages contribute nothing.
func (r *Response) OutputText() string {
	if r == nil {
		return ""
	}
	return ExtractMessageText(r.Output)
}

// ---------------------------------------------------------------------------
// Moderation
// ---------------------------------------------------------------------------

// ModerationVerdict is the outcome of the policy gate. Exactly one verdict
// is produced per turn.
type ModerationVerdict struct {
	Blocked      bool
	ShieldID     string
	ModerationID string
	Message      string
	Refusal      *Item
}

// NewRefusalItem builds an assistant message item carrying a refusal
// content part, used both as synthesized response output and as the
// assistant half of a blocked conversation turn.
func NewRefusalItem(message string) *Item {
	return &Item{
		ID:     NewItemID(),
		Type:   ItemTypeMessage,
		Status: ItemStatusCompleted,
		Message: &MessageData{
			Role:    RoleAssistant,
			Content: []ContentPart{{Type: ContentTypeRefusal, Refusal: message}},
		},
	}
}
