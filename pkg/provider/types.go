package provider

import "github.com/tkralik/turnstile/pkg/api"

// Event is a single streaming event from the backend. The backend speaks
// the same Responses-style vocabulary as the outward wire protocol, so
// Type reuses the api event names; the transcoder relays events in
// arrival order and re-stamps them.
type Event struct {
	// Type is the backend event name.
	Type api.WireEventType

	// Response is populated on lifecycle events (created, in_progress,
	// completed, incomplete, failed).
	Response *api.Response

	// Item is populated on output_item.added and output_item.done.
	Item *api.Item

	// OutputIndex positions the item within the response output.
	OutputIndex int

	// ItemID identifies the item interior events belong to.
	ItemID string

	// ContentIndex positions a text delta within the item's content.
	ContentIndex int

	// Delta carries incremental text or argument data.
	Delta string

	// Arguments carries the complete argument string on arguments-done
	// events.
	Arguments string

	// Err is populated when the stream fails mid-flight; it is always the
	// last event before the channel closes.
	Err error
}

// ModelInfo holds information about a model served by the backend.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// ShieldInfo describes a safety shield configured on the backend.
type ShieldInfo struct {
	// ID is the shield identifier.
	ID string `json:"identifier"`

	// ProviderID names the shield implementation (e.g., "llama-guard").
	ProviderID string `json:"provider_id"`

	// ProviderResourceID is the backing model for shields that delegate
	// to one; custom shields configure their model internally and leave
	// this unset or pointing at a non-model resource.
	ProviderResourceID string `json:"provider_resource_id"`
}

// ModerationResult is the outcome of one shield evaluation.
type ModerationResult struct {
	// ID is the backend-assigned moderation identifier.
	ID string

	// Flagged reports whether the shield flagged the input.
	Flagged bool

	// Categories lists the violation categories when flagged.
	Categories []string

	// UserMessage is the shield-supplied refusal text; empty when the
	// shield provides none.
	UserMessage string
}
