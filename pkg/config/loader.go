package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, TURNSTILE_CONFIG env, ./config.yaml, /etc/turnstile/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. TURNSTILE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/turnstile/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("TURNSTILE_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/turnstile/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps TURNSTILE_* environment variables to config
// fields, taking precedence over both defaults and the YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TURNSTILE_BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("TURNSTILE_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}
	if v := os.Getenv("TURNSTILE_MODEL"); v != "" {
		cfg.Engine.DefaultModel = v
	}
	if v := os.Getenv("TURNSTILE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("TURNSTILE_STORAGE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("TURNSTILE_STORAGE_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			cfg.Storage.MaxSize = size
		}
	}
	if v := os.Getenv("TURNSTILE_QUOTA"); v != "" {
		cfg.Quota.Type = v
	}
	if v := os.Getenv("TURNSTILE_AUTH_TYPE"); v != "" {
		cfg.Auth.Type = v
	}

	// TURNSTILE_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("TURNSTILE_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err == nil && len(keys) > 0 {
			cfg.Auth.APIKeys = keys
		}
	}

	// TURNSTILE_MCP_SERVERS: JSON array of MCP server configs.
	if v := os.Getenv("TURNSTILE_MCP_SERVERS"); v != "" {
		servers, err := parseMCPServersJSON(v)
		if err == nil && len(servers) > 0 {
			cfg.MCP.Servers = servers
		}
	}
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

// parseMCPServersJSON parses a JSON array of MCP server configurations.
func parseMCPServersJSON(jsonStr string) ([]MCPServerConfig, error) {
	var servers []MCPServerConfig
	if err := json.Unmarshal([]byte(jsonStr), &servers); err != nil {
		return nil, fmt.Errorf("parsing MCP servers JSON: %w", err)
	}
	return servers, nil
}

// resolveFileReferences reads _file fields and populates the corresponding
// value fields. For each field ending in _file, if the value field is empty
// and the file field is set, the file is read, whitespace is trimmed, and
// the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// backend.api_key_file -> backend.api_key
	if cfg.Backend.APIKeyFile != "" && cfg.Backend.APIKey == "" {
		val, err := readSecretFile(cfg.Backend.APIKeyFile)
		if err != nil {
			return fmt.Errorf("backend.api_key_file: %w", err)
		}
		cfg.Backend.APIKey = val
	}

	// storage.postgres.dsn_file -> storage.postgres.dsn
	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	// quota.postgres.dsn_file -> quota.postgres.dsn
	if cfg.Quota.Postgres.DSNFile != "" && cfg.Quota.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Quota.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("quota.postgres.dsn_file: %w", err)
		}
		cfg.Quota.Postgres.DSN = val
	}

	// auth.api_keys[*].key_file -> auth.api_keys[*].key
	for i := range cfg.Auth.APIKeys {
		if cfg.Auth.APIKeys[i].KeyFile != "" && cfg.Auth.APIKeys[i].Key == "" {
			val, err := readSecretFile(cfg.Auth.APIKeys[i].KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			cfg.Auth.APIKeys[i].Key = val
		}
	}

	// mcp.servers[*].token_file -> mcp.servers[*].token
	for i := range cfg.MCP.Servers {
		if cfg.MCP.Servers[i].TokenFile != "" && cfg.MCP.Servers[i].Token == "" {
			val, err := readSecretFile(cfg.MCP.Servers[i].TokenFile)
			if err != nil {
				return fmt.Errorf("mcp.servers[%d].token_file: %w", i, err)
			}
			cfg.MCP.Servers[i].Token = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding
// whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
