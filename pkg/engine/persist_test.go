package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/tkralik/turnstile/pkg/api"
	"github.com/tkralik/turnstile/pkg/provider"
	"github.com/tkralik/turnstile/pkg/storage"
	"github.com/tkralik/turnstile/pkg/storage/memory"
	"github.com/tkralik/turnstile/pkg/transport"
)

func TestTurnIsPersisted(t *testing.T) {
	p := &fakeProvider{
		create: func(req *provider.Request) (*api.Response, error) {
			return messageResponse("recorded answer", &api.Usage{InputTokens: 1, OutputTokens: 1}), nil
		},
	}
	store := memory.New(16)
	e := newTestEngine(t, p, nil, store)
	w := &captureWriter{}

	ctx := transport.ContextWithUserID(context.Background(), "alice")
	if err := e.CreateTurn(ctx, &api.TurnRequest{Query: "question"}, w); err != nil {
		t.Fatalf("CreateTurn: %v", err)
	}

	turns, err := store.Turns(ctx, "alice", w.response.ConversationID)
	if err != nil {
		t.Fatalf("Turns: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("recorded %d turns, want 1", len(turns))
	}
	rec := turns[0]
	if rec.Question != "question" {
		t.Errorf("question = %q", rec.Question)
	}
	if rec.Response != "recorded answer" {
		t.Errorf("response = %q", rec.Response)
	}
	if rec.Model != "test-model" {
		t.Errorf("model = %q", rec.Model)
	}
	if rec.Topic != "" {
		t.Errorf("unrequested topic = %q", rec.Topic)
	}
	if rec.CompletedAt.Before(rec.StartedAt) {
		t.Error("completed before started")
	}
}

func TestTopicSummaryOnFirstTurn(t *testing.T) {
	p := &fakeProvider{
		create: func(req *provider.Request) (*api.Response, error) {
			if req.NoStore {
				if req.ConversationID != "" {
					t.Error("topic summary call carries a conversation id")
				}
				return messageResponse("Weather chat", nil), nil
			}
			return messageResponse("sunny", &api.Usage{InputTokens: 1, OutputTokens: 1}), nil
		},
	}
	store := memory.New(16)
	e := newTestEngine(t, p, nil, store)
	w := &captureWriter{}

	ctx := transport.ContextWithUserID(context.Background(), "alice")
	err := e.CreateTurn(ctx, &api.TurnRequest{Query: "what's the weather", SummarizeTopic: true}, w)
	if err != nil {
		t.Fatalf("CreateTurn: %v", err)
	}

	if len(p.createCalls) != 2 {
		t.Fatalf("backend calls = %d, want turn + topic summary", len(p.createCalls))
	}

	turns, err := store.Turns(ctx, "alice", w.response.ConversationID)
	if err != nil {
		t.Fatalf("Turns: %v", err)
	}
	if turns[0].Topic != "Weather chat" {
		t.Errorf("topic = %q, want Weather chat", turns[0].Topic)
	}
}

func TestNoTopicSummaryOnLaterTurns(t *testing.T) {
	p := &fakeProvider{
		create: func(req *provider.Request) (*api.Response, error) {
			if req.NoStore {
				return messageResponse("a topic", nil), nil
			}
			return messageResponse("answer", nil), nil
		},
	}
	store := memory.New(16)
	e := newTestEngine(t, p, nil, store)

	ctx := transport.ContextWithUserID(context.Background(), "alice")
	w1 := &captureWriter{}
	if err := e.CreateTurn(ctx, &api.TurnRequest{Query: "first", SummarizeTopic: true}, w1); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	conv := w1.response.ConversationID

	w2 := &captureWriter{}
	err := e.CreateTurn(ctx, &api.TurnRequest{Query: "second", ConversationID: conv, SummarizeTopic: true}, w2)
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}

	// first turn + its topic summary + second turn, no second summary
	if len(p.createCalls) != 3 {
		t.Fatalf("backend calls = %d, want 3", len(p.createCalls))
	}

	turns, err := store.Turns(ctx, "alice", conv)
	if err != nil {
		t.Fatalf("Turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("recorded %d turns, want 2", len(turns))
	}
	if turns[1].Topic != "" {
		t.Errorf("second turn topic = %q, want empty", turns[1].Topic)
	}
}

// writeFailStore errors on every write to exercise persistence error
// handling on both paths.
type writeFailStore struct {
	*memory.Store
}

func (s *writeFailStore) WriteTurnSummary(ctx context.Context, rec *storage.TurnRecord) error {
	return errors.New("disk full")
}

func TestNonStreamingSurfacesPersistenceFailure(t *testing.T) {
	p := &fakeProvider{
		create: func(req *provider.Request) (*api.Response, error) {
			return messageResponse("answer", nil), nil
		},
	}
	e := newTestEngine(t, p, nil, &writeFailStore{memory.New(4)})
	w := &captureWriter{}

	err := e.CreateTurn(context.Background(), &api.TurnRequest{Query: "hi"}, w)
	var perr *api.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want persistence error", err)
	}
	if w.response != nil {
		t.Error("response written despite persistence failure")
	}
}

func TestStreamingSwallowsPersistenceFailure(t *testing.T) {
	resp := messageResponse("answer", &api.Usage{InputTokens: 1, OutputTokens: 1})
	p := &fakeProvider{
		stream: func(req *provider.Request) []provider.Event {
			inProgress := *resp
			inProgress.Status = api.ResponseStatusInProgress
			return []provider.Event{
				{Type: api.EventResponseCreated, Response: &inProgress},
				completedEvent(resp),
			}
		},
	}
	e := newTestEngine(t, p, nil, &writeFailStore{memory.New(4)})
	w := &captureWriter{}

	err := e.CreateTurn(context.Background(), &api.TurnRequest{Query: "hi", Stream: true}, w)
	if err != nil {
		t.Fatalf("CreateTurn: %v", err)
	}
	if len(w.events) != 2 {
		t.Fatalf("relayed %d events, want 2", len(w.events))
	}
}
