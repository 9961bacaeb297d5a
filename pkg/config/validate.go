package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Backend.URL == "" {
		errs = append(errs, fmt.Errorf("backend.url is required"))
	}

	if c.Server.Addr == "" {
		errs = append(errs, fmt.Errorf("server.addr is required"))
	}
	if c.Server.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must be >= 0, got %d", c.Server.MaxBodyBytes))
	}

	switch c.Storage.Type {
	case "none", "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"none\", \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}
	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	switch c.Quota.Type {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("quota.type must be \"memory\" or \"postgres\", got %q", c.Quota.Type))
	}
	if c.Quota.Type == "postgres" && len(c.Quota.Limiters) > 0 {
		if c.Quota.Postgres.DSN == "" && c.Quota.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("quota.postgres.dsn or quota.postgres.dsn_file is required when quota.type is \"postgres\""))
		}
	}
	for i, l := range c.Quota.Limiters {
		if l.Name == "" {
			errs = append(errs, fmt.Errorf("quota.limiters[%d].name is required", i))
		}
		switch l.Scope {
		case "", "user", "cluster":
		default:
			errs = append(errs, fmt.Errorf("quota.limiters[%d].scope must be \"user\" or \"cluster\", got %q", i, l.Scope))
		}
		if l.InitialQuota <= 0 {
			errs = append(errs, fmt.Errorf("quota.limiters[%d].initial_quota must be > 0, got %d", i, l.InitialQuota))
		}
	}

	switch c.Auth.Type {
	case "none", "apikey", "jwt":
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}
	if c.Auth.Type == "apikey" && len(c.Auth.APIKeys) == 0 {
		errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
	}
	if c.Auth.Type == "jwt" && c.Auth.JWT.JWKSURL == "" {
		errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
	}

	for i, s := range c.MCP.Servers {
		if s.Label == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].label is required", i))
		}
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].url is required", i))
		}
	}

	return errors.Join(errs...)
}
