package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tkralik/turnstile/pkg/api"
	"github.com/tkralik/turnstile/pkg/cache"
	"github.com/tkralik/turnstile/pkg/provider"
	"github.com/tkralik/turnstile/pkg/quota"
	"github.com/tkralik/turnstile/pkg/storage"
	"github.com/tkralik/turnstile/pkg/transport"
)

// Engine orchestrates turn processing between the transport layer and the
// inference backend. It implements transport.TurnCreator.
type Engine struct {
	provider provider.Provider
	limiters []quota.Limiter
	store    storage.TurnStore // nil disables persistence
	cfg      Config
	logger   *slog.Logger

	shieldCatalog *cache.TTL[[]provider.ShieldInfo]
	modelCatalog  *cache.TTL[map[string]bool]
}

// Ensure Engine implements transport.TurnCreator at compile time.
var _ transport.TurnCreator = (*Engine)(nil)

// New creates a new Engine. The provider must not be nil. The store can
// be nil when turn persistence is disabled.
func New(p provider.Provider, limiters []quota.Limiter, store storage.TurnStore, cfg Config, logger *slog.Logger) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("engine: provider must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		provider:      p,
		limiters:      limiters,
		store:         store,
		cfg:           cfg,
		logger:        logger,
		shieldCatalog: cache.New[[]provider.ShieldInfo](cfg.catalogTTL(), 4),
		modelCatalog:  cache.New[map[string]bool](cfg.catalogTTL(), 4),
	}, nil
}

// turnRun carries the per-turn state threaded through the pipeline.
type turnRun struct {
	req    *api.TurnRequest
	userID string

	// conversationID is the canonical (UUID) id stamped on every outward
	// event; backendConvID is the backend's conv_ form.
	conversationID string
	backendConvID  string

	// hadConversation is true when the client referenced an existing
	// conversation instead of starting a new one.
	hadConversation bool

	verdict   *api.ModerationVerdict
	startedAt time.Time
}

// CreateTurn runs the full pipeline for one turn: policy gate, dispatch,
// transcoding, extraction, accounting, persistence.
func (e *Engine) CreateTurn(ctx context.Context, req *api.TurnRequest, w transport.ResponseWriter) error {
	if req.Model == "" {
		if e.cfg.DefaultModel == "" {
			return &api.StatusError{StatusCode: 422, Message: "model is required"}
		}
		req.Model = e.cfg.DefaultModel
	}
	if len(req.KnowledgeSources) == 0 {
		req.KnowledgeSources = e.cfg.KnowledgeSources
	}

	run := &turnRun{
		req:       req,
		userID:    transport.UserIDFromContext(ctx),
		startedAt: time.Now(),
	}

	if req.ConversationID != "" {
		canonical, err := api.NormalizeConversationID(req.ConversationID)
		if err != nil {
			return &api.StatusError{StatusCode: 422, Message: err.Error()}
		}
		run.conversationID = canonical
		run.hadConversation = true
	} else {
		run.conversationID = api.NewConversationID()
	}
	backendID, err := api.ToBackendConversationID(run.conversationID)
	if err != nil {
		return err
	}
	run.backendConvID = backendID

	verdict, err := e.runPolicyGate(ctx, run.userID, req.Query)
	if err != nil {
		return err
	}
	run.verdict = verdict

	if req.Stream {
		return e.streamTurn(ctx, run, w)
	}
	return e.completeTurn(ctx, run, w)
}

// shields returns the backend's shield catalog, served from cache within
// the configured TTL.
func (e *Engine) shields(ctx context.Context) ([]provider.ShieldInfo, error) {
	if shields, ok := e.shieldCatalog.Get("shields"); ok {
		return shields, nil
	}
	shields, err := e.provider.ListShields(ctx)
	if err != nil {
		return nil, err
	}
	e.shieldCatalog.Set("shields", shields)
	return shields, nil
}

// models returns the set of model ids known to the backend, served from
// cache within the configured TTL.
func (e *Engine) models(ctx context.Context) (map[string]bool, error) {
	if models, ok := e.modelCatalog.Get("models"); ok {
		return models, nil
	}
	list, err := e.provider.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	models := make(map[string]bool, len(list))
	for _, m := range list {
		models[m.ID] = true
	}
	e.modelCatalog.Set("models", models)
	return models, nil
}

// providerRequest builds the backend request for the turn.
func (e *Engine) providerRequest(run *turnRun, stream bool) *provider.Request {
	return &provider.Request{
		Model:            run.req.Model,
		Input:            run.req.Query,
		Instructions:     e.cfg.systemPrompt(run.req.SystemPrompt),
		ConversationID:   run.backendConvID,
		KnowledgeSources: run.req.KnowledgeSources,
		MCPServers:       e.cfg.MCPServers,
		Stream:           stream,
	}
}

// userMessageItem builds the message item recorded in conversation
// history for the user's input on blocked turns.
func userMessageItem(query string) api.Item {
	return api.Item{
		ID:     api.NewItemID(),
		Type:   api.ItemTypeMessage,
		Status: api.ItemStatusCompleted,
		Message: &api.MessageData{
			Role:    api.RoleUser,
			Content: []api.ContentPart{{Type: api.ContentTypeInputText, Text: query}},
		},
	}
}

// isClientGone reports whether an event write failed because the client
// disconnected rather than because of a protocol violation.
func isClientGone(ctx context.Context, err error) bool {
	return err != nil && (ctx.Err() != nil || errors.Is(err, context.Canceled))
}
