package lls

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tkralik/turnstile/pkg/api"
	"github.com/tkralik/turnstile/pkg/provider"
)

// StreamResponse performs streaming inference. Events are sent to the
// returned channel in backend arrival order; the channel is closed when
// the stream ends or fails.
func (c *Client) StreamResponse(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	body := buildRequest(req, true)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpResp, err := c.do(ctx, http.MethodPost, "/v1/responses", payload, true)
	if err != nil {
		return nil, provider.MapNetworkError(c.cfg.BaseURL, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		return nil, c.statusError(req.Model, httpResp)
	}

	// Buffer of one: the producer may run a single event ahead of the
	// consumer, never more.
	ch := make(chan provider.Event, 1)
	go func() {
		defer httpResp.Body.Close()
		parseSSEStream(httpResp.Body, ch)
	}()

	return ch, nil
}

// eventData is the union of all SSE payload shapes the backend emits.
// Fields are populated per event type; the decoder picks what it needs.
type eventData struct {
	Response     *api.Response `json:"response,omitempty"`
	Item         *api.Item     `json:"item,omitempty"`
	ItemID       string        `json:"item_id,omitempty"`
	OutputIndex  int           `json:"output_index,omitempty"`
	ContentIndex int           `json:"content_index,omitempty"`
	Delta        string        `json:"delta,omitempty"`
	Arguments    string        `json:"arguments,omitempty"`
	Text         string        `json:"text,omitempty"`
}

// parseSSEStream reads SSE events from the reader and maps them to
// provider.Event values. The channel is closed when the stream ends.
func parseSSEStream(r io.Reader, ch chan<- provider.Event) {
	defer close(ch)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var currentEvent string
	for scanner.Scan() {
		line := scanner.Text()

		// SSE format: "event: <type>" followed by "data: <json>".
		if strings.HasPrefix(line, "event: ") {
			currentEvent = strings.TrimPrefix(line, "event: ")
			continue
		}

		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				return
			}
			if currentEvent != "" {
				decodeSSEEvent(currentEvent, []byte(data), ch)
				currentEvent = ""
			}
			continue
		}

		// Empty lines are SSE delimiters, ignore them.
	}

	if err := scanner.Err(); err != nil {
		ch <- provider.Event{Err: fmt.Errorf("SSE stream read: %w", err)}
	}
}

// decodeSSEEvent parses a single backend event. Event types outside the
// known vocabulary are skipped; the protocol treats them as no-ops.
func decodeSSEEvent(eventType string, data []byte, ch chan<- provider.Event) {
	wireType := api.WireEventType(eventType)
	if !knownEventType(wireType) {
		slog.Debug("skipping unknown backend event", "type", eventType)
		return
	}

	var d eventData
	if err := json.Unmarshal(data, &d); err != nil {
		slog.Debug("failed to parse backend event", "type", eventType, "error", err)
		return
	}

	ch <- provider.Event{
		Type:         wireType,
		Response:     d.Response,
		Item:         d.Item,
		ItemID:       d.ItemID,
		OutputIndex:  d.OutputIndex,
		ContentIndex: d.ContentIndex,
		Delta:        d.Delta,
		Arguments:    d.Arguments,
	}
}

func knownEventType(t api.WireEventType) bool {
	switch t {
	case api.EventResponseCreated,
		api.EventResponseInProgress,
		api.EventOutputItemAdded,
		api.EventOutputItemDone,
		api.EventResponseCompleted,
		api.EventResponseIncomplete,
		api.EventResponseFailed,
		api.EventOutputTextDelta,
		api.EventOutputTextDone,
		api.EventFunctionCallArgsDelta,
		api.EventMCPCallArgsDelta,
		api.EventMCPCallArgsDone:
		return true
	}
	return false
}
