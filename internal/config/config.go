// Package config provides configuration types and loading for the mcpglass
// broker. Values come from an optional mcpglass.yaml, MCPGLASS_* environment
// variables, and the MCP Inspector compatibility variables
// (MCP_INSPECTOR_API_TOKEN, MCP_STORAGE_DIR, MCP_INITIAL_*, ...).
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Config is the top-level broker configuration.
type Config struct {
	// Server configures the HTTP listener and edge policy.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Auth configures the bearer-token check on broker endpoints.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Events configures per-session event queueing.
	Events EventsConfig `yaml:"events" mapstructure:"events"`

	// Storage configures the key-value store for OAuth state.
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// LogSink configures the optional file sink behind POST /api/log.
	LogSink LogSinkConfig `yaml:"log_sink" mapstructure:"log_sink"`

	// Initial seeds the read-only document served by GET /api/config,
	// pre-filling the inspector UI's connect form.
	Initial InitialConfig `yaml:"initial" mapstructure:"initial"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address. Loopback by default: the broker is a
	// local debugging tool, not a production gateway.
	Addr string `yaml:"addr" mapstructure:"addr" validate:"required"`

	// AllowedOrigins is the browser origin allowlist for DNS rebinding
	// protection. Requests without an Origin header always pass.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins" validate:"omitempty,dive,origin"`

	// RequestTimeout bounds non-streaming endpoint handling (e.g. "30s").
	// The events endpoint is exempt.
	RequestTimeout string `yaml:"request_timeout" mapstructure:"request_timeout" validate:"omitempty,duration"`

	// ShutdownTimeout bounds graceful HTTP shutdown (e.g. "10s").
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"omitempty,duration"`

	// LogLevel selects the slog level.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// AuthConfig configures the x-mcp-remote-auth bearer check.
type AuthConfig struct {
	// Token is the expected bearer token. When empty a random 32-byte hex
	// token is generated per process.
	Token string `yaml:"token" mapstructure:"token"`

	// DangerouslyOmitAuth disables the bearer check. Origin validation
	// still runs: DNS rebinding protection is independent of credentials.
	DangerouslyOmitAuth bool `yaml:"dangerously_omit_auth" mapstructure:"dangerously_omit_auth"`

	// tokenGenerated records whether Token was generated rather than
	// supplied, so the serve command can print it.
	tokenGenerated bool
}

// TokenGenerated reports whether the token was generated this process.
func (a *AuthConfig) TokenGenerated() bool { return a.tokenGenerated }

// EventsConfig configures per-session event queueing.
type EventsConfig struct {
	// QueueSize bounds each session's event queue. Overflow drops the
	// oldest non-terminal event.
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size" validate:"omitempty,min=16"`

	// CloseTimeout bounds each transport close during shutdown (e.g. "5s").
	CloseTimeout string `yaml:"close_timeout" mapstructure:"close_timeout" validate:"omitempty,duration"`
}

// StorageConfig configures the key-value store.
type StorageConfig struct {
	// Dir is the storage root. Empty selects $HOME/.mcp-inspector/storage.
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// LogSinkConfig configures the rotating file sink for POST /api/log.
// With File empty, log records are accepted and discarded.
type LogSinkConfig struct {
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb" validate:"omitempty,min=1"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups" validate:"omitempty,min=0"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days" validate:"omitempty,min=0"`
}

// InitialConfig seeds GET /api/config.
type InitialConfig struct {
	Command     string            `yaml:"command" mapstructure:"command"`
	Args        string            `yaml:"args" mapstructure:"args"`
	Transport   string            `yaml:"transport" mapstructure:"transport" validate:"omitempty,oneof=stdio sse streamableHttp"`
	ServerURL   string            `yaml:"server_url" mapstructure:"server_url"`
	Environment map[string]string `yaml:"environment" mapstructure:"environment"`
	SandboxURL  string            `yaml:"sandbox_url" mapstructure:"sandbox_url"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:6277",
			RequestTimeout:  "30s",
			ShutdownTimeout: "10s",
			LogLevel:        "info",
		},
		Events: EventsConfig{
			QueueSize:    4096,
			CloseTimeout: "5s",
		},
		LogSink: LogSinkConfig{
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// RequestTimeoutDuration parses Server.RequestTimeout; invalid or empty
// values fall back to 30s.
func (c *Config) RequestTimeoutDuration() time.Duration {
	return parseDuration(c.Server.RequestTimeout, 30*time.Second)
}

// ShutdownTimeoutDuration parses Server.ShutdownTimeout with a 10s fallback.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}

// CloseTimeoutDuration parses Events.CloseTimeout with a 5s fallback.
func (c *Config) CloseTimeoutDuration() time.Duration {
	return parseDuration(c.Events.CloseTimeout, 5*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// EnsureToken fills Auth.Token with a fresh random token when none was
// configured and auth is enabled.
func (c *Config) EnsureToken() error {
	if c.Auth.DangerouslyOmitAuth || c.Auth.Token != "" {
		return nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Errorf("generate api token: %w", err)
	}
	c.Auth.Token = hex.EncodeToString(b)
	c.Auth.tokenGenerated = true
	return nil
}
