package api

import "encoding/json"

// WireEventType identifies the type of a streaming wire event.
type WireEventType string

// Lifecycle events frame a response stream. Every sequence starts with
// response.created and ends with exactly one terminal event.
const (
	EventResponseCreated    WireEventType = "response.created"
	EventResponseInProgress WireEventType = "response.in_progress"
	EventOutputItemAdded    WireEventType = "response.output_item.added"
	EventOutputItemDone     WireEventType = "response.output_item.done"
	EventResponseCompleted  WireEventType = "response.completed"
	EventResponseIncomplete WireEventType = "response.incomplete"
	EventResponseFailed     WireEventType = "response.failed"
)

// Interior events carry incremental content between lifecycle events.
// The transcoder relays them verbatim; any type the backend emits passes
// through unchanged, these constants only name the ones the engine
// inspects.
const (
	EventOutputTextDelta       WireEventType = "response.output_text.delta"
	EventOutputTextDone        WireEventType = "response.output_text.done"
	EventFunctionCallArgsDelta WireEventType = "response.function_call_arguments.delta"
	EventMCPCallArgsDelta      WireEventType = "response.mcp_call.arguments.delta"
	EventMCPCallArgsDone       WireEventType = "response.mcp_call.arguments.done"
)

// Terminal reports whether the event type ends a stream. The [DONE]
// sentinel follows exactly one terminal event.
func (t WireEventType) Terminal() bool {
	switch t {
	case EventResponseCompleted, EventResponseIncomplete, EventResponseFailed:
		return true
	}
	return false
}

// WireEvent is a single server-sent event of a streaming turn. Every event
// is stamped with the normalized conversation id. AvailableQuotas is the
// empty mapping on all non-terminal events and is populated exactly once,
// on the terminal event.
type WireEvent struct {
	Type            WireEventType    `json:"type"`
	SequenceNumber  int              `json:"sequence_number"`
	ConversationID  string           `json:"conversation_id,omitempty"`
	Response        *Response        `json:"response,omitempty"`
	Item            *Item            `json:"item,omitempty"`
	ItemID          string           `json:"item_id,omitempty"`
	OutputIndex     int              `json:"output_index,omitempty"`
	ContentIndex    int              `json:"content_index,omitempty"`
	Delta           string           `json:"delta,omitempty"`
	Arguments       string           `json:"arguments,omitempty"`
	AvailableQuotas map[string]int64 `json:"available_quotas"`
}

// MarshalJSON guarantees available_quotas is always a JSON object, never
// null, so clients can index into it unconditionally.
func (e WireEvent) MarshalJSON() ([]byte, error) {
	type wire WireEvent
	w := wire(e)
	if w.AvailableQuotas == nil {
		w.AvailableQuotas = map[string]int64{}
	}
	return json.Marshal(w)
}
