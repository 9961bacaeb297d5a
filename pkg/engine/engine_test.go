package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/tkralik/turnstile/pkg/api"
	"github.com/tkralik/turnstile/pkg/provider"
	"github.com/tkralik/turnstile/pkg/quota"
	"github.com/tkralik/turnstile/pkg/storage"
	"github.com/tkralik/turnstile/pkg/transport"
)

// fakeProvider is a scriptable backend for engine tests.
type fakeProvider struct {
	models     []provider.ModelInfo
	shields    []provider.ShieldInfo
	moderate   func(model, input string) (*provider.ModerationResult, error)
	create     func(req *provider.Request) (*api.Response, error)
	stream     func(req *provider.Request) []provider.Event
	streamErr  error
	appendErr  error

	createCalls []*provider.Request
	streamCalls []*provider.Request
	appended    []appendedItems
}

type appendedItems struct {
	conversationID string
	items          []api.Item
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) CreateResponse(ctx context.Context, req *provider.Request) (*api.Response, error) {
	f.createCalls = append(f.createCalls, req)
	if f.create == nil {
		return nil, errors.New("unexpected CreateResponse call")
	}
	return f.create(req)
}

func (f *fakeProvider) StreamResponse(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	f.streamCalls = append(f.streamCalls, req)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	events := f.stream(req)
	ch := make(chan provider.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	return f.models, nil
}

func (f *fakeProvider) ListShields(ctx context.Context) ([]provider.ShieldInfo, error) {
	return f.shields, nil
}

func (f *fakeProvider) RunModeration(ctx context.Context, model, input string) (*provider.ModerationResult, error) {
	if f.moderate == nil {
		return &provider.ModerationResult{ID: "modr-1"}, nil
	}
	return f.moderate(model, input)
}

func (f *fakeProvider) AppendConversationItems(ctx context.Context, conversationID string, items []api.Item) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, appendedItems{conversationID, items})
	return nil
}

func (f *fakeProvider) Close() error { return nil }

// captureWriter records everything the engine writes.
type captureWriter struct {
	events   []api.WireEvent
	response *api.Response
}

func (w *captureWriter) WriteEvent(ctx context.Context, event api.WireEvent) error {
	w.events = append(w.events, event)
	return nil
}

func (w *captureWriter) WriteResponse(ctx context.Context, resp *api.Response) error {
	w.response = resp
	return nil
}

func (w *captureWriter) Flush() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, p *fakeProvider, limiters []quota.Limiter, store storage.TurnStore) *Engine {
	t.Helper()
	e, err := New(p, limiters, store, Config{DefaultModel: "test-model"}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func completedEvent(resp *api.Response) provider.Event {
	return provider.Event{Type: api.EventResponseCompleted, Response: resp}
}

func messageResponse(text string, usage *api.Usage) *api.Response {
	return &api.Response{
		ID:     "resp_1",
		Object: "response",
		Status: api.ResponseStatusCompleted,
		Model:  "test-model",
		Output: []api.Item{{
			ID:     "msg_1",
			Type:   api.ItemTypeMessage,
			Status: api.ItemStatusCompleted,
			Message: &api.MessageData{
				Role:    api.RoleAssistant,
				Content: []api.ContentPart{{Type: api.ContentTypeOutputText, Text: text}},
			},
		}},
		Usage: usage,
	}
}

func TestStreamingTurnRelaysBackendEvents(t *testing.T) {
	resp := messageResponse("hello there", &api.Usage{InputTokens: 10, OutputTokens: 5})
	p := &fakeProvider{
		stream: func(req *provider.Request) []provider.Event {
			inProgress := *resp
			inProgress.Status = api.ResponseStatusInProgress
			return []provider.Event{
				{Type: api.EventResponseCreated, Response: &inProgress},
				{Type: api.EventOutputItemAdded, Item: &resp.Output[0], ItemID: "msg_1"},
				{Type: api.EventOutputTextDelta, ItemID: "msg_1", Delta: "hello there"},
				{Type: api.EventOutputItemDone, Item: &resp.Output[0], ItemID: "msg_1"},
				completedEvent(resp),
			}
		},
	}
	limiter := quota.NewUserLimiter("user", 1000)
	e := newTestEngine(t, p, []quota.Limiter{limiter}, nil)
	w := &captureWriter{}

	ctx := transport.ContextWithUserID(context.Background(), "alice")
	err := e.CreateTurn(ctx, &api.TurnRequest{Query: "hi", Stream: true}, w)
	if err != nil {
		t.Fatalf("CreateTurn: %v", err)
	}

	if len(w.events) != 5 {
		t.Fatalf("relayed %d events, want 5", len(w.events))
	}
	for i, ev := range w.events {
		if ev.SequenceNumber != i {
			t.Errorf("event %d sequence = %d", i, ev.SequenceNumber)
		}
		if ev.ConversationID == "" {
			t.Errorf("event %d missing conversation id", i)
		}
		if ev.Type.Terminal() {
			if len(ev.AvailableQuotas) == 0 {
				t.Error("terminal event missing quota snapshot")
			}
		} else if len(ev.AvailableQuotas) != 0 {
			t.Errorf("non-terminal event %d carries quotas %v", i, ev.AvailableQuotas)
		}
	}

	terminal := w.events[len(w.events)-1]
	if terminal.Type != api.EventResponseCompleted {
		t.Fatalf("last event = %s", terminal.Type)
	}
	if got := terminal.AvailableQuotas["user"]; got != 985 {
		t.Errorf("remaining quota = %d, want 985", got)
	}
	if terminal.Response.ConversationID != terminal.ConversationID {
		t.Error("terminal response snapshot not stamped with conversation id")
	}
}

func TestStreamingBlockedTurnEmitsFixedSequence(t *testing.T) {
	p := &fakeProvider{
		models:  []provider.ModelInfo{{ID: "guard-model"}},
		shields: []provider.ShieldInfo{{ID: "shield-1", ProviderID: "llama-guard", ProviderResourceID: "guard-model"}},
		moderate: func(model, input string) (*provider.ModerationResult, error) {
			return &provider.ModerationResult{ID: "modr-1", Flagged: true}, nil
		},
	}
	limiter := quota.NewUserLimiter("user", 100)
	e := newTestEngine(t, p, []quota.Limiter{limiter}, nil)
	w := &captureWriter{}

	ctx := transport.ContextWithUserID(context.Background(), "alice")
	err := e.CreateTurn(ctx, &api.TurnRequest{Query: "bad input", Stream: true}, w)
	if err != nil {
		t.Fatalf("CreateTurn: %v", err)
	}

	want := []api.WireEventType{
		api.EventResponseCreated,
		api.EventOutputItemAdded,
		api.EventOutputItemDone,
		api.EventResponseCompleted,
	}
	if len(w.events) != len(want) {
		t.Fatalf("emitted %d events, want %d", len(w.events), len(want))
	}
	for i, ev := range w.events {
		if ev.Type != want[i] {
			t.Errorf("event %d = %s, want %s", i, ev.Type, want[i])
		}
	}
	if len(p.streamCalls) != 0 || len(p.createCalls) != 0 {
		t.Error("blocked turn reached the backend")
	}

	terminal := w.events[3]
	if text := api.ExtractMessageText(terminal.Response.Output); text != DefaultViolationMessage {
		t.Errorf("refusal text = %q", text)
	}
	if terminal.Response.Usage == nil || terminal.Response.Usage.InputTokens != 0 {
		t.Error("blocked turn should report zero usage")
	}
	// A zero-usage turn still settles: snapshot present, balance untouched.
	if got := terminal.AvailableQuotas["user"]; got != 100 {
		t.Errorf("remaining quota = %d, want 100", got)
	}
}

func TestStreamingBlockedTurnRecordsRefusalInHistory(t *testing.T) {
	p := &fakeProvider{
		models:  []provider.ModelInfo{{ID: "guard-model"}},
		shields: []provider.ShieldInfo{{ID: "shield-1", ProviderID: "llama-guard", ProviderResourceID: "guard-model"}},
		moderate: func(model, input string) (*provider.ModerationResult, error) {
			return &provider.ModerationResult{Flagged: true, UserMessage: "not allowed"}, nil
		},
	}
	e := newTestEngine(t, p, nil, nil)
	w := &captureWriter{}

	conv := api.NewConversationID()
	ctx := transport.ContextWithUserID(context.Background(), "alice")
	err := e.CreateTurn(ctx, &api.TurnRequest{Query: "bad", ConversationID: conv, Stream: true}, w)
	if err != nil {
		t.Fatalf("CreateTurn: %v", err)
	}

	if len(p.appended) != 1 {
		t.Fatalf("appended %d batches, want 1", len(p.appended))
	}
	items := p.appended[0].items
	if len(items) != 2 {
		t.Fatalf("appended %d items, want user message + refusal", len(items))
	}
	if items[0].Message == nil || items[0].Message.Role != api.RoleUser {
		t.Error("first appended item is not the user message")
	}
	if text := api.ExtractMessageText(items[1:]); text != "not allowed" {
		t.Errorf("refusal text = %q, want shield message", text)
	}
}

func TestStreamWithoutTerminalEventFails(t *testing.T) {
	p := &fakeProvider{
		stream: func(req *provider.Request) []provider.Event {
			created := messageResponse("", nil)
			created.Status = api.ResponseStatusInProgress
			return []provider.Event{
				{Type: api.EventResponseCreated, Response: created},
				{Type: api.EventOutputTextDelta, ItemID: "msg_1", Delta: "partial"},
			}
		},
	}
	e := newTestEngine(t, p, nil, nil)
	w := &captureWriter{}

	err := e.CreateTurn(context.Background(), &api.TurnRequest{Query: "hi", Stream: true}, w)
	if err == nil {
		t.Fatal("expected error for stream without terminal event")
	}
	if !strings.Contains(err.Error(), "terminal") {
		t.Errorf("error = %v", err)
	}
}

func TestStreamBackendErrorPropagates(t *testing.T) {
	p := &fakeProvider{
		stream: func(req *provider.Request) []provider.Event {
			created := messageResponse("", nil)
			created.Status = api.ResponseStatusInProgress
			return []provider.Event{
				{Type: api.EventResponseCreated, Response: created},
				{Err: errors.New("backend hiccup")},
			}
		},
	}
	e := newTestEngine(t, p, nil, nil)
	w := &captureWriter{}

	err := e.CreateTurn(context.Background(), &api.TurnRequest{Query: "hi", Stream: true}, w)
	if err == nil || !strings.Contains(err.Error(), "backend hiccup") {
		t.Fatalf("error = %v", err)
	}
}

func TestNonStreamingTurn(t *testing.T) {
	p := &fakeProvider{
		create: func(req *provider.Request) (*api.Response, error) {
			if req.Stream {
				t.Error("non-streaming turn requested a stream")
			}
			return messageResponse("the answer", &api.Usage{InputTokens: 7, OutputTokens: 3}), nil
		},
	}
	limiter := quota.NewUserLimiter("user", 50)
	e := newTestEngine(t, p, []quota.Limiter{limiter}, nil)
	w := &captureWriter{}

	ctx := transport.ContextWithUserID(context.Background(), "bob")
	err := e.CreateTurn(ctx, &api.TurnRequest{Query: "question"}, w)
	if err != nil {
		t.Fatalf("CreateTurn: %v", err)
	}

	if w.response == nil {
		t.Fatal("no response written")
	}
	if len(w.events) != 0 {
		t.Errorf("non-streaming turn wrote %d events", len(w.events))
	}
	if w.response.ConversationID == "" {
		t.Error("response missing conversation id")
	}
	if got := w.response.AvailableQuotas["user"]; got != 40 {
		t.Errorf("remaining quota = %d, want 40", got)
	}
}

func TestNonStreamingBlockedTurn(t *testing.T) {
	p := &fakeProvider{
		models:  []provider.ModelInfo{{ID: "guard-model"}},
		shields: []provider.ShieldInfo{{ID: "shield-1", ProviderID: "llama-guard", ProviderResourceID: "guard-model"}},
		moderate: func(model, input string) (*provider.ModerationResult, error) {
			return &provider.ModerationResult{Flagged: true}, nil
		},
	}
	e := newTestEngine(t, p, nil, nil)
	w := &captureWriter{}

	err := e.CreateTurn(context.Background(), &api.TurnRequest{Query: "bad"}, w)
	if err != nil {
		t.Fatalf("CreateTurn: %v", err)
	}

	if w.response == nil {
		t.Fatal("no response written")
	}
	if w.response.Status != api.ResponseStatusCompleted {
		t.Errorf("status = %s, want completed", w.response.Status)
	}
	if len(w.response.Output) != 1 {
		t.Fatalf("output has %d items, want refusal only", len(w.response.Output))
	}
	if text := api.ExtractMessageText(w.response.Output); text != DefaultViolationMessage {
		t.Errorf("refusal text = %q", text)
	}
	if len(p.createCalls) != 0 {
		t.Error("blocked turn reached the backend")
	}
}

func TestMissingModelWithoutDefaultRejected(t *testing.T) {
	p := &fakeProvider{}
	e, err := New(p, nil, nil, Config{}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = e.CreateTurn(context.Background(), &api.TurnRequest{Query: "hi"}, &captureWriter{})
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != 422 {
		t.Fatalf("error = %v, want 422 status error", err)
	}
}

func TestInvalidConversationIDRejected(t *testing.T) {
	p := &fakeProvider{}
	e := newTestEngine(t, p, nil, nil)

	err := e.CreateTurn(context.Background(),
		&api.TurnRequest{Query: "hi", ConversationID: "not-a-uuid"}, &captureWriter{})
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != 422 {
		t.Fatalf("error = %v, want 422 status error", err)
	}
}

func TestQuotaExhaustedRejectsBeforeBackend(t *testing.T) {
	p := &fakeProvider{}
	limiter := quota.NewUserLimiter("user", 0)
	e := newTestEngine(t, p, []quota.Limiter{limiter}, nil)

	ctx := transport.ContextWithUserID(context.Background(), "alice")
	err := e.CreateTurn(ctx, &api.TurnRequest{Query: "hi"}, &captureWriter{})
	var quotaErr *api.QuotaExceededError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("error = %v, want quota exceeded", err)
	}
	if len(p.createCalls)+len(p.streamCalls) != 0 {
		t.Error("exhausted quota still reached the backend")
	}
}
