// Command server runs the turnstile response gateway.
//
// Configuration is loaded from a YAML file (discovered or given via
// -config) with TURNSTILE_* environment overrides; see pkg/config.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/tkralik/turnstile/pkg/auth"
	"github.com/tkralik/turnstile/pkg/auth/apikey"
	"github.com/tkralik/turnstile/pkg/auth/jwt"
	"github.com/tkralik/turnstile/pkg/auth/noop"
	"github.com/tkralik/turnstile/pkg/config"
	"github.com/tkralik/turnstile/pkg/debug"
	"github.com/tkralik/turnstile/pkg/engine"
	"github.com/tkralik/turnstile/pkg/provider"
	"github.com/tkralik/turnstile/pkg/provider/lls"
	"github.com/tkralik/turnstile/pkg/quota"
	quotapg "github.com/tkralik/turnstile/pkg/quota/postgres"
	"github.com/tkralik/turnstile/pkg/storage"
	"github.com/tkralik/turnstile/pkg/storage/memory"
	storagepg "github.com/tkralik/turnstile/pkg/storage/postgres"
	transporthttp "github.com/tkralik/turnstile/pkg/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (default: discovered)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	debug.Init(cfg.Debug.Categories, cfg.Debug.Level)

	ctx := context.Background()

	// Inference backend.
	prov, err := lls.New(lls.Config{
		BaseURL: cfg.Backend.URL,
		APIKey:  cfg.Backend.APIKey,
		Timeout: cfg.Backend.Timeout,
	})
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	defer prov.Close()

	// Quota ledgers.
	limiters, closeLimiters, err := buildLimiters(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating quota ledgers: %w", err)
	}
	defer closeLimiters()

	// Turn persistence.
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating turn store: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	eng, err := engine.New(prov, limiters, store, engine.Config{
		DefaultModel:       cfg.Engine.DefaultModel,
		SystemPrompt:       cfg.Engine.SystemPrompt,
		TopicSummaryPrompt: cfg.Engine.TopicSummaryPrompt,
		KnowledgeSources:   cfg.Engine.KnowledgeSources,
		MCPServers:         mcpServers(cfg.MCP),
		CatalogTTL:         cfg.Engine.CatalogTTL,
	}, slog.Default())
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	authMW, err := buildAuthMiddleware(cfg)
	if err != nil {
		return fmt.Errorf("creating auth middleware: %w", err)
	}

	srv := transporthttp.NewServer(eng,
		transporthttp.WithAddr(cfg.Server.Addr),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodyBytes),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithMetrics(cfg.Observability.Metrics.Enabled, cfg.Observability.Metrics.Path),
		transporthttp.WithHTTPMiddleware(authMW),
	)

	srv.Adapter().AddReadinessCheck("backend", func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_, err := prov.ListModels(ctx)
		return err
	})
	if pg, ok := store.(*storagepg.Store); ok {
		srv.Adapter().AddReadinessCheck("storage", pg.HealthCheck)
	}

	slog.Info("server starting",
		"addr", cfg.Server.Addr,
		"backend", cfg.Backend.URL,
		"model", cfg.Engine.DefaultModel,
		"storage", cfg.Storage.Type,
		"quota", cfg.Quota.Type,
		"auth", cfg.Auth.Type,
	)
	return srv.ListenAndServe()
}

// buildLimiters constructs the configured quota ledgers. The returned
// closer releases postgres pools; it is a no-op for memory ledgers.
func buildLimiters(ctx context.Context, cfg *config.Config) ([]quota.Limiter, func(), error) {
	if len(cfg.Quota.Limiters) == 0 {
		return nil, func() {}, nil
	}

	var limiters []quota.Limiter
	var closers []func() error

	for _, lc := range cfg.Quota.Limiters {
		subjectType := quota.SubjectUser
		if lc.Scope == "cluster" {
			subjectType = quota.SubjectCluster
		}

		switch cfg.Quota.Type {
		case "postgres":
			lim, err := quotapg.New(ctx, quotapg.Config{
				DSN:          cfg.Quota.Postgres.DSN,
				MaxConns:     cfg.Quota.Postgres.MaxConns,
				Name:         lc.Name,
				SubjectType:  subjectType,
				InitialQuota: lc.InitialQuota,
			})
			if err != nil {
				return nil, nil, fmt.Errorf("ledger %q: %w", lc.Name, err)
			}
			limiters = append(limiters, lim)
			closers = append(closers, lim.Close)
		default:
			if subjectType == quota.SubjectCluster {
				limiters = append(limiters, quota.NewClusterLimiter(lc.Name, lc.InitialQuota))
			} else {
				limiters = append(limiters, quota.NewUserLimiter(lc.Name, lc.InitialQuota))
			}
		}
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Warn("closing quota ledger", "error", err)
			}
		}
	}
	return limiters, closeAll, nil
}

// buildStore constructs the turn store, or nil when persistence is off.
func buildStore(ctx context.Context, cfg *config.Config) (storage.TurnStore, error) {
	switch cfg.Storage.Type {
	case "none":
		slog.Info("turn persistence disabled")
		return nil, nil
	case "postgres":
		return storagepg.New(ctx, storagepg.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})
	default:
		slog.Info("turn persistence enabled", "type", "memory", "max_size", cfg.Storage.MaxSize)
		return memory.New(cfg.Storage.MaxSize), nil
	}
}

// buildAuthMiddleware assembles the authentication chain and per-subject
// rate limiter from configuration.
func buildAuthMiddleware(cfg *config.Config) (func(http.Handler) http.Handler, error) {
	chain := &auth.AuthChain{DefaultDecision: auth.No}

	switch cfg.Auth.Type {
	case "none":
		chain.Authenticators = []auth.Authenticator{noop.New()}
	case "apikey":
		var entries []apikey.RawKeyEntry
		for _, k := range cfg.Auth.APIKeys {
			entries = append(entries, apikey.RawKeyEntry{
				Key:      k.Key,
				Identity: auth.Identity{Subject: k.Subject},
			})
		}
		chain.Authenticators = []auth.Authenticator{apikey.New(entries)}
	case "jwt":
		chain.Authenticators = []auth.Authenticator{jwt.New(jwt.Config{
			Issuer:    cfg.Auth.JWT.Issuer,
			Audience:  cfg.Auth.JWT.Audience,
			JWKSURL:   cfg.Auth.JWT.JWKSURL,
			UserClaim: cfg.Auth.JWT.UserClaim,
		})}
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Auth.Type)
	}

	var limiter auth.RateLimiter
	if cfg.Auth.RateLimitRPM > 0 {
		limiter = auth.NewInProcessLimiter(cfg.Auth.RateLimitRPM)
	}

	return auth.Middleware(chain, limiter, auth.DefaultBypassEndpoints), nil
}

// mcpServers converts configured MCP attachments to provider form. A
// configured token becomes an Authorization header unless one is set
// explicitly.
func mcpServers(cfg config.MCPConfig) []provider.MCPServer {
	var servers []provider.MCPServer
	for _, s := range cfg.Servers {
		headers := make(map[string]string, len(s.Headers)+1)
		for k, v := range s.Headers {
			headers[k] = v
		}
		if s.Token != "" {
			if _, ok := headers["Authorization"]; !ok {
				headers["Authorization"] = "Bearer " + s.Token
			}
		}
		if len(headers) == 0 {
			headers = nil
		}
		servers = append(servers, provider.MCPServer{
			Label:   s.Label,
			URL:     s.URL,
			Headers: headers,
		})
	}
	return servers
}
