package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tkralik/turnstile/pkg/api"
)

func TestWriteResponseJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	resp := &api.Response{
		ID:     "resp_abc123",
		Object: "response",
		Status: api.ResponseStatusCompleted,
		Model:  "test-model",
	}

	if err := rw.WriteResponse(context.Background(), resp); err != nil {
		t.Fatalf("WriteResponse error: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var got api.Response
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got.ID != "resp_abc123" {
		t.Errorf("ID = %q, want %q", got.ID, "resp_abc123")
	}
	if got.Status != api.ResponseStatusCompleted {
		t.Errorf("Status = %q, want %q", got.Status, api.ResponseStatusCompleted)
	}
}

func TestWriteEventSSEFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	event := api.WireEvent{
		Type:           api.EventOutputTextDelta,
		SequenceNumber: 1,
		Delta:          "Hello",
		ItemID:         "item_001",
	}

	if err := rw.WriteEvent(context.Background(), event); err != nil {
		t.Fatalf("WriteEvent error: %v", err)
	}

	body := rec.Body.String()

	if !strings.Contains(body, "event: response.output_text.delta\n") {
		t.Errorf("missing event type line in:\n%s", body)
	}
	if !strings.Contains(body, "data: ") {
		t.Errorf("missing data line in:\n%s", body)
	}

	// Extract and parse the JSON data.
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			jsonStr := strings.TrimPrefix(line, "data: ")
			var got api.WireEvent
			if err := json.Unmarshal([]byte(jsonStr), &got); err != nil {
				t.Fatalf("failed to parse event JSON: %v", err)
			}
			if got.Type != api.EventOutputTextDelta {
				t.Errorf("event type = %q, want %q", got.Type, api.EventOutputTextDelta)
			}
			if got.Delta != "Hello" {
				t.Errorf("delta = %q, want %q", got.Delta, "Hello")
			}
		}
	}
}

func TestWriteEventSSEHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	event := api.WireEvent{Type: api.EventResponseCreated, SequenceNumber: 0}
	rw.WriteEvent(context.Background(), event)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want %q", ct, "text/event-stream")
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want %q", cc, "no-cache")
	}
	if conn := rec.Header().Get("Connection"); conn != "keep-alive" {
		t.Errorf("Connection = %q, want %q", conn, "keep-alive")
	}
}

func TestWriteEventTerminalSendsDone(t *testing.T) {
	tests := []struct {
		name      string
		eventType api.WireEventType
	}{
		{"completed", api.EventResponseCompleted},
		{"incomplete", api.EventResponseIncomplete},
		{"failed", api.EventResponseFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			rw := newSSEResponseWriter(rec)

			if err := rw.WriteEvent(context.Background(), api.WireEvent{Type: tt.eventType}); err != nil {
				t.Fatalf("WriteEvent error: %v", err)
			}

			body := rec.Body.String()
			if n := strings.Count(body, "data: [DONE]\n\n"); n != 1 {
				t.Errorf("end marker count = %d, want 1 in:\n%s", n, body)
			}
			if !strings.HasSuffix(body, "data: [DONE]\n\n") {
				t.Errorf("end marker must be last in:\n%s", body)
			}

			// Nothing may follow the end marker.
			if err := rw.WriteEvent(context.Background(), api.WireEvent{Type: api.EventOutputTextDelta}); err == nil {
				t.Error("expected error writing after terminal event")
			}
		})
	}
}

func TestWriteEventInteriorNoDone(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	events := []api.WireEventType{
		api.EventResponseCreated,
		api.EventResponseInProgress,
		api.EventOutputTextDelta,
		api.EventOutputItemDone,
	}
	for _, et := range events {
		if err := rw.WriteEvent(context.Background(), api.WireEvent{Type: et}); err != nil {
			t.Fatalf("WriteEvent(%s) error: %v", et, err)
		}
	}

	if strings.Contains(rec.Body.String(), "[DONE]") {
		t.Errorf("end marker sent before terminal event:\n%s", rec.Body.String())
	}
}

func TestWriteEventAvailableQuotasAlwaysObject(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	if err := rw.WriteEvent(context.Background(), api.WireEvent{Type: api.EventResponseCreated}); err != nil {
		t.Fatalf("WriteEvent error: %v", err)
	}

	if !strings.Contains(rec.Body.String(), `"available_quotas":{}`) {
		t.Errorf("available_quotas must serialize as an empty object:\n%s", rec.Body.String())
	}
}

func TestMutualExclusion(t *testing.T) {
	t.Run("response after event", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := newSSEResponseWriter(rec)

		rw.WriteEvent(context.Background(), api.WireEvent{Type: api.EventResponseCreated})
		if err := rw.WriteResponse(context.Background(), &api.Response{}); err == nil {
			t.Error("expected error writing response after streaming started")
		}
	})

	t.Run("event after response", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := newSSEResponseWriter(rec)

		rw.WriteResponse(context.Background(), &api.Response{})
		if err := rw.WriteEvent(context.Background(), api.WireEvent{Type: api.EventResponseCreated}); err == nil {
			t.Error("expected error writing event after response")
		}
	})

	t.Run("double response", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := newSSEResponseWriter(rec)

		rw.WriteResponse(context.Background(), &api.Response{})
		if err := rw.WriteResponse(context.Background(), &api.Response{}); err == nil {
			t.Error("expected error on second WriteResponse")
		}
	})
}

func TestHasStartedStreaming(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	if rw.hasStartedStreaming() {
		t.Error("idle writer must not report streaming")
	}

	rw.WriteEvent(context.Background(), api.WireEvent{Type: api.EventResponseCreated})
	if !rw.hasStartedStreaming() {
		t.Error("writer must report streaming after first event")
	}

	rw.WriteEvent(context.Background(), api.WireEvent{Type: api.EventResponseCompleted})
	if !rw.hasStartedStreaming() {
		t.Error("completed stream must still report streaming")
	}
}
