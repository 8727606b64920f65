package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. With an empty configFile it searches for mcpglass.yaml/.yml in
// the working directory and $HOME/.mcpglass. The search requires an explicit
// YAML extension so the binary itself is never matched.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("mcpglass")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: MCPGLASS_SERVER_ADDR overrides server.addr.
	viper.SetEnvPrefix("MCPGLASS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for mcpglass.yaml or .yml.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{".", filepath.Join(home, ".mcpglass")}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "mcpglass"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys for env var overrides.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.addr")
	_ = viper.BindEnv("server.allowed_origins")
	_ = viper.BindEnv("server.request_timeout")
	_ = viper.BindEnv("server.shutdown_timeout")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("auth.token")
	_ = viper.BindEnv("auth.dangerously_omit_auth")
	_ = viper.BindEnv("events.queue_size")
	_ = viper.BindEnv("events.close_timeout")
	_ = viper.BindEnv("storage.dir")
	_ = viper.BindEnv("log_sink.file")
	_ = viper.BindEnv("log_sink.max_size_mb")
	_ = viper.BindEnv("log_sink.max_backups")
	_ = viper.BindEnv("log_sink.max_age_days")
	_ = viper.BindEnv("initial.command")
	_ = viper.BindEnv("initial.args")
	_ = viper.BindEnv("initial.transport")
	_ = viper.BindEnv("initial.server_url")
	_ = viper.BindEnv("initial.sandbox_url")
}

// ConfigFileUsed returns the config file Viper loaded, if any.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// Load reads the configuration: defaults, then file, then MCPGLASS_ env
// vars, then the MCP Inspector compatibility variables (which win, matching
// the inspector's own precedence).
func Load() (*Config, error) {
	cfg := Default()

	if err := viper.ReadInConfig(); err != nil {
		// A malformed file is an error; a missing one is not.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyInspectorEnv(cfg)
	return cfg, nil
}

// applyInspectorEnv overlays the MCP Inspector compatibility variables.
func applyInspectorEnv(cfg *Config) {
	if v := os.Getenv("MCP_INSPECTOR_API_TOKEN"); v != "" {
		cfg.Auth.Token = v
	} else if v := os.Getenv("MCP_PROXY_AUTH_TOKEN"); v != "" {
		// Legacy name, honored when the primary is unset.
		cfg.Auth.Token = v
	}
	if envTrue("DANGEROUSLY_OMIT_AUTH") {
		cfg.Auth.DangerouslyOmitAuth = true
	}
	if v := os.Getenv("MCP_STORAGE_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("MCP_INITIAL_COMMAND"); v != "" {
		cfg.Initial.Command = v
	}
	if v := os.Getenv("MCP_INITIAL_ARGS"); v != "" {
		cfg.Initial.Args = v
	}
	if v := os.Getenv("MCP_INITIAL_TRANSPORT"); v != "" {
		cfg.Initial.Transport = v
	}
	if v := os.Getenv("MCP_INITIAL_SERVER_URL"); v != "" {
		cfg.Initial.ServerURL = v
	}
	if v := os.Getenv("MCP_SANDBOX_URL"); v != "" {
		cfg.Initial.SandboxURL = v
	}
	if v := os.Getenv("MCP_ENV_VARS"); v != "" {
		var env map[string]string
		if err := json.Unmarshal([]byte(v), &env); err == nil {
			cfg.Initial.Environment = env
		}
	}
}

// envTrue interprets common truthy spellings.
func envTrue(name string) bool {
	switch strings.ToLower(os.Getenv(name)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
