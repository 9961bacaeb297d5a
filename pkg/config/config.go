// Package config provides unified configuration for the turnstile gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (TURNSTILE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the turnstile gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Backend       BackendConfig       `yaml:"backend"`
	Engine        EngineConfig        `yaml:"engine"`
	Quota         QuotaConfig         `yaml:"quota"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	MCP           MCPConfig           `yaml:"mcp"`
	Observability ObservabilityConfig `yaml:"observability"`
	Debug         DebugConfig         `yaml:"debug"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`             // default: ":8080"
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`   // default: 1 MiB
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 10s
}

// BackendConfig holds the inference backend connection settings.
type BackendConfig struct {
	URL        string        `yaml:"url"`          // required
	APIKey     string        `yaml:"api_key"`      // optional
	APIKeyFile string        `yaml:"api_key_file"` // _file variant for api_key
	Timeout    time.Duration `yaml:"timeout"`      // default: 120s, non-streaming only
}

// EngineConfig holds turn-processing settings.
type EngineConfig struct {
	DefaultModel string `yaml:"default_model"` // optional; requests must name one otherwise

	// SystemPrompt overrides the built-in default system prompt.
	// Per-request prompts still take precedence.
	SystemPrompt string `yaml:"system_prompt"`

	// TopicSummaryPrompt overrides the prompt used to label new
	// conversations.
	TopicSummaryPrompt string `yaml:"topic_summary_prompt"`

	// KnowledgeSources lists vector store ids attached to every turn
	// that does not name its own.
	KnowledgeSources []string `yaml:"knowledge_sources"`

	// CatalogTTL bounds how long model and shield catalogs are cached.
	CatalogTTL time.Duration `yaml:"catalog_ttl"` // default: 5m
}

// QuotaConfig holds token-quota ledger settings.
type QuotaConfig struct {
	// Type selects the ledger backing: "memory" or "postgres".
	Type string `yaml:"type"` // default: "memory"

	// Postgres applies when type is "postgres"; the limiters share one DSN.
	Postgres PostgresConfig `yaml:"postgres"`

	Limiters []LimiterConfig `yaml:"limiters"`
}

// LimiterConfig describes one quota ledger.
type LimiterConfig struct {
	Name string `yaml:"name"` // key in quota snapshots, required

	// Scope is "user" (per-subject balance) or "cluster" (shared balance).
	Scope string `yaml:"scope"` // default: "user"

	// InitialQuota is the token balance a new subject starts with.
	InitialQuota int64 `yaml:"initial_quota"`
}

// StorageConfig holds turn persistence settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "none", "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type    string         `yaml:"type"`     // "none", "apikey", "jwt", default: "none"
	APIKeys []APIKeyConfig `yaml:"api_keys"` // API key entries for type=apikey
	JWT     JWTConfig      `yaml:"jwt"`      // settings for type=jwt

	// RateLimitRPM caps requests per minute per authenticated subject.
	// Zero disables rate limiting.
	RateLimitRPM int `yaml:"rate_limit_rpm"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key     string `yaml:"key"`
	KeyFile string `yaml:"key_file"` // _file variant for key
	Subject string `yaml:"subject"`
}

// JWTConfig holds JWT/OIDC validation settings.
type JWTConfig struct {
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
	JWKSURL   string `yaml:"jwks_url"`
	UserClaim string `yaml:"user_claim"` // default: "sub"
}

// MCPConfig holds MCP (Model Context Protocol) tool server settings.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes a single MCP server attached to every turn.
type MCPServerConfig struct {
	Label     string            `yaml:"label"`
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
	Token     string            `yaml:"token"`
	TokenFile string            `yaml:"token_file"` // _file variant for token
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// DebugConfig holds category-based debug logging settings.
type DebugConfig struct {
	Categories string `yaml:"categories"` // comma-separated, e.g. "backend,streaming"
	Level      string `yaml:"level"`      // ERROR, WARN, INFO, DEBUG, TRACE
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			MaxBodyBytes:    1 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		Backend: BackendConfig{
			Timeout: 120 * time.Second,
		},
		Engine: EngineConfig{
			CatalogTTL: 5 * time.Minute,
		},
		Quota: QuotaConfig{
			Type: "memory",
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
