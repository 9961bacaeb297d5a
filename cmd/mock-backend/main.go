// Command mock-backend runs a deterministic inference backend for
// conformance testing. It serves the Responses-style API the gateway
// talks to: model and shield catalogs, moderations, response creation
// (JSON and SSE) and conversation item appends.
//
// Responses are derived from the input text so test runs are
// predictable: an input containing "forbidden" is flagged by the mock
// shield, "count from 1 to 5" streams digits, anything else greets.
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tkralik/turnstile/pkg/api"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/responses", handleResponses)
	mux.HandleFunc("GET /v1/models", handleModels)
	mux.HandleFunc("GET /v1/shields", handleShields)
	mux.HandleFunc("POST /v1/moderations", handleModerations)
	mux.HandleFunc("POST /v1/conversations/{id}/items", handleAppendItems)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// --- Request types ---

type responsesRequest struct {
	Model        string `json:"model"`
	Input        string `json:"input"`
	Instructions string `json:"instructions"`
	Conversation string `json:"conversation"`
	Stream       bool   `json:"stream"`
	Store        bool   `json:"store"`
}

type moderationRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

// --- Handlers ---

func handleResponses(w http.ResponseWriter, r *http.Request) {
	var req responsesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request"}}`, http.StatusBadRequest)
		return
	}

	model := req.Model
	if model == "" {
		model = "mock-model"
	}

	if req.Stream {
		streamResponse(w, model, req.Conversation, responseTokens(req.Input))
		return
	}

	resp := buildResponse(model, req.Conversation, strings.Join(responseTokens(req.Input), ""))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// responseTokens derives the deterministic answer for an input.
func responseTokens(input string) []string {
	if strings.Contains(strings.ToLower(input), "count from 1 to 5") {
		return []string{"1", ", ", "2", ", ", "3", ", ", "4", ", ", "5"}
	}
	return []string{"Hello", ", ", "nice", " ", "day", "!"}
}

func buildResponse(model, conversation, text string) *api.Response {
	return &api.Response{
		ID:             "resp_mock",
		Object:         "response",
		CreatedAt:      time.Now().Unix(),
		Status:         api.ResponseStatusCompleted,
		Model:          model,
		ConversationID: conversation,
		Output: []api.Item{{
			ID:     "msg_mock",
			Type:   api.ItemTypeMessage,
			Status: api.ItemStatusCompleted,
			Message: &api.MessageData{
				Role:    api.RoleAssistant,
				Content: []api.ContentPart{{Type: api.ContentTypeOutputText, Text: text}},
			},
		}},
		Usage: &api.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}

// --- Streaming ---

func streamResponse(w http.ResponseWriter, model, conversation string, tokens []string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	text := strings.Join(tokens, "")
	final := buildResponse(model, conversation, text)

	created := *final
	created.Status = api.ResponseStatusInProgress
	created.Output = nil
	created.Usage = nil

	writeSSE(w, api.EventResponseCreated, map[string]any{"response": &created})
	flusher.Flush()

	item := final.Output[0]
	added := item
	added.Status = api.ItemStatusInProgress
	added.Message = &api.MessageData{Role: api.RoleAssistant}
	writeSSE(w, api.EventOutputItemAdded, map[string]any{
		"item":         &added,
		"output_index": 0,
	})
	flusher.Flush()

	for _, token := range tokens {
		writeSSE(w, api.EventOutputTextDelta, map[string]any{
			"item_id":       item.ID,
			"output_index":  0,
			"content_index": 0,
			"delta":         token,
		})
		flusher.Flush()
	}

	writeSSE(w, api.EventOutputItemDone, map[string]any{
		"item":         &item,
		"output_index": 0,
	})
	writeSSE(w, api.EventResponseCompleted, map[string]any{"response": final})
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeSSE(w http.ResponseWriter, eventType api.WireEventType, payload map[string]any) {
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
}

// --- Catalog endpoints ---

func handleModels(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": "mock-model", "object": "model", "owned_by": "mock"},
			{"id": "mock-guard-model", "object": "model", "owned_by": "mock"},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func handleShields(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"object": "list",
		"data": []map[string]any{
			{
				"identifier":           "mock-guard",
				"provider_id":          "llama-guard",
				"provider_resource_id": "mock-guard-model",
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- Moderation ---

func handleModerations(w http.ResponseWriter, r *http.Request) {
	var req moderationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request"}}`, http.StatusBadRequest)
		return
	}

	flagged := strings.Contains(strings.ToLower(req.Input), "forbidden")
	result := map[string]any{
		"flagged":    flagged,
		"categories": map[string]bool{},
	}
	if flagged {
		result["categories"] = map[string]bool{"violence": true}
		result["user_message"] = "I cannot help with that."
	}

	resp := map[string]any{
		"id":      "modr_mock",
		"results": []any{result},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- Conversation items ---

func handleAppendItems(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Items []api.Item `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":{"message":"invalid request"}}`, http.StatusBadRequest)
		return
	}
	slog.Info("items appended",
		"conversation", r.PathValue("id"),
		"count", len(body.Items),
	)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": body.Items})
}
