package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys, state-store URIs) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Agent pipeline limits and switches
	Agent AgentConfig `yaml:"agent"`

	// Engine state store (sessions, messages, memory, schema snapshots)
	State StateConfig `yaml:"state"`

	// Optional hot cache for schema snapshots
	Redis RedisConfig `yaml:"redis"`

	// LLM oracle configuration
	LLM LLMConfig `yaml:"llm"`

	// Bearer-token authentication
	Auth AuthConfig `yaml:"auth"`

	// Conversation session housekeeping
	Session SessionConfig `yaml:"session"`

	// Target-database connection management
	Datasource DatasourceConfig `yaml:"datasource"`

	// MCP tool surface
	MCP MCPConfig `yaml:"mcp"`

	// Logging
	Log LogConfig `yaml:"log"`
}

// AgentConfig holds the pipeline-wide limits enforced by the safety gate
// and the schema registry.
type AgentConfig struct {
	// SchemaTTLMillis is how long a schema snapshot stays fresh.
	SchemaTTLMillis int64 `yaml:"schema_ttl_ms" env:"SCHEMA_TTL_MS" env-default:"86400000"`
	// DefaultRowCap bounds every read and aggregation result.
	DefaultRowCap int `yaml:"default_row_cap" env:"DEFAULT_ROW_CAP" env-default:"1000"`
	// QueryTimeoutMillis is the wall-clock deadline per database statement.
	QueryTimeoutMillis int64 `yaml:"query_timeout_ms" env:"QUERY_TIMEOUT_MS" env-default:"15000"`
	// RedactSQL replaces SQL text with [redacted] in user-facing responses.
	RedactSQL bool `yaml:"redact_sql" env:"SQL_REDACTION" env-default:"false"`
}

// SchemaTTL returns the snapshot freshness window.
func (c *AgentConfig) SchemaTTL() time.Duration {
	return time.Duration(c.SchemaTTLMillis) * time.Millisecond
}

// QueryTimeout returns the per-statement deadline.
func (c *AgentConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutMillis) * time.Millisecond
}

// StateConfig holds the engine's own MongoDB state store settings.
// The URI may embed credentials and therefore never comes from YAML.
type StateConfig struct {
	URI      string `yaml:"-" env:"STATE_MONGO_URI" env-default:"mongodb://localhost:27017"`
	Database string `yaml:"database" env:"STATE_MONGO_DB" env-default:"datapilot"`
}

// RedisConfig holds the optional schema-cache settings. An empty Host
// disables the cache entirely.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// Enabled reports whether the schema hot cache is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Addr returns the host:port address for the Redis client.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LLMConfig holds the oracle provider settings. Provider "none" (or empty)
// disables the LLM; the engine then runs on deterministic heuristics.
type LLMConfig struct {
	Provider      string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"none"`
	APIKey        string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	BaseURL       string  `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`
	Model         string  `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	TimeoutMillis int64   `yaml:"timeout_ms" env:"LLM_TIMEOUT_MS" env-default:"30000"`
	MaxTokens     int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"2048"`
	Temperature   float32 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.1"`
}

// Providers the engine knows how to construct.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderNone      = "none"
)

// Enabled reports whether an LLM oracle is configured.
func (c *LLMConfig) Enabled() bool {
	return c.Provider != "" && c.Provider != ProviderNone
}

// Timeout returns the per-call LLM deadline.
func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

// AuthConfig holds bearer-token verification settings. With verification
// disabled, tokens are parsed but not signature-checked (development mode).
type AuthConfig struct {
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"false"`

	// JWTSecret enables the HS256 shared-secret mode when set.
	JWTSecret string `yaml:"-" env:"AUTH_JWT_SECRET"` // Secret - not in YAML

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2". Enables the RS256/JWKS mode.
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// SessionConfig holds conversation housekeeping knobs.
type SessionConfig struct {
	// IdleTimeoutMinutes is how long a session may sit without activity
	// before the sweep marks it inactive.
	IdleTimeoutMinutes int `yaml:"idle_timeout_minutes" env:"SESSION_IDLE_TIMEOUT_MINUTES" env-default:"30"`
	// SweepIntervalMinutes is how often the housekeeping sweep runs.
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes" env:"SESSION_SWEEP_INTERVAL_MINUTES" env-default:"30"`
	// MaxPerUser caps concurrently active sessions per user.
	MaxPerUser int `yaml:"max_per_user" env:"SESSION_CAP_PER_USER" env-default:"20"`
	// MessageCap bounds messages returned per session.
	MessageCap int `yaml:"message_cap" env:"SESSION_MESSAGE_CAP" env-default:"500"`
	// TTLDays is the storage-level expiry from lastActivity.
	TTLDays int `yaml:"ttl_days" env:"SESSION_TTL_DAYS" env-default:"30"`
}

// IdleTimeout returns the inactivity window as a duration.
func (c *SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMinutes) * time.Minute
}

// SweepInterval returns the housekeeping cadence as a duration.
func (c *SessionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// DatasourceConfig holds target-database connection management settings.
type DatasourceConfig struct {
	// PoolMaxConns is the maximum number of connections per relational pool.
	PoolMaxConns int32 `yaml:"pool_max_conns" env:"RELATIONAL_POOL_MAX" env-default:"10"`
	// PoolMinConns is the minimum number of connections per relational pool.
	PoolMinConns int32 `yaml:"pool_min_conns" env:"RELATIONAL_POOL_MIN" env-default:"1"`
	// ConnectionTTLMinutes is how long idle cached connections are kept alive.
	ConnectionTTLMinutes int `yaml:"connection_ttl_minutes" env:"DATASOURCE_CONNECTION_TTL_MINUTES" env-default:"30"`
	// PreflightTimeoutSeconds bounds the first-use liveness probe.
	PreflightTimeoutSeconds int `yaml:"preflight_timeout_seconds" env:"DATASOURCE_PREFLIGHT_TIMEOUT_SECONDS" env-default:"5"`
	// StatementTimeoutSeconds is the server-side statement deadline applied
	// at pool construction where the database supports it.
	StatementTimeoutSeconds int `yaml:"statement_timeout_seconds" env:"DATASOURCE_STATEMENT_TIMEOUT_SECONDS" env-default:"30"`
}

// ConnectionTTL returns the idle-connection lifetime.
func (c *DatasourceConfig) ConnectionTTL() time.Duration {
	return time.Duration(c.ConnectionTTLMinutes) * time.Minute
}

// PreflightTimeout returns the liveness-probe deadline.
func (c *DatasourceConfig) PreflightTimeout() time.Duration {
	return time.Duration(c.PreflightTimeoutSeconds) * time.Second
}

// StatementTimeout returns the server-side statement deadline.
func (c *DatasourceConfig) StatementTimeout() time.Duration {
	return time.Duration(c.StatementTimeoutSeconds) * time.Second
}

// MCPConfig controls the MCP tool surface.
type MCPConfig struct {
	Enabled bool `yaml:"enabled" env:"MCP_ENABLED" env-default:"false"`
}

// LogConfig holds logger construction settings.
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	// Dir, when set, adds a file sink alongside stderr.
	Dir string `yaml:"dir" env:"LOG_DIR" env-default:""`
}

// Load reads configuration from config.yaml with environment variable
// overrides. When config.yaml is absent, configuration is environment-only;
// a missing file is not an error. The version parameter is injected at
// build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)
	return nil
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderNone, "":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.Agent.DefaultRowCap < 1 {
		return fmt.Errorf("default_row_cap must be positive, got %d", c.Agent.DefaultRowCap)
	}
	if c.Auth.EnableVerification && c.Auth.JWTSecret == "" && len(c.Auth.JWKSEndpoints) == 0 {
		return fmt.Errorf("auth verification enabled but neither AUTH_JWT_SECRET nor JWKS_ENDPOINTS is set")
	}
	return nil
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	pairs := strings.Split(value, ",")
	for _, pair := range pairs {
		parts := strings.Split(pair, "=")
		if len(parts) == 2 {
			endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return endpoints
}
