package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	httpadapter "github.com/mcpglass/mcpglass/internal/adapter/inbound/http"
	"github.com/mcpglass/mcpglass/internal/adapter/outbound/mcp"
	"github.com/mcpglass/mcpglass/internal/adapter/outbound/storage"
	"github.com/mcpglass/mcpglass/internal/config"
	"github.com/mcpglass/mcpglass/internal/domain/session"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the broker",
	Long: `Start the mcpglass broker.

The broker listens on a loopback address by default and requires the
x-mcp-remote-auth bearer token on every /api request. When no token is
configured one is generated and printed at startup.

Examples:
  # Start with defaults (127.0.0.1:6277, generated token)
  mcpglass start

  # Start with a specific config file
  mcpglass --config /path/to/mcpglass.yaml start

  # Pre-fill the inspector connect form for a local server
  MCP_INITIAL_TRANSPORT=stdio MCP_INITIAL_COMMAND=npx \
    MCP_INITIAL_ARGS="@modelcontextprotocol/server-everything" mcpglass start`,
	RunE: runStart,
}

var printConfig bool

func init() {
	startCmd.Flags().BoolVar(&printConfig, "print-config", false, "Print the effective configuration as YAML and exit")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if printConfig {
		return yaml.NewEncoder(os.Stdout).Encode(cfg)
	}

	if err := cfg.EnsureToken(); err != nil {
		return err
	}

	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("mcpglass stopped")
	return nil
}

// run wires all components together and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Metrics registry feeds both /metrics and the session observer.
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := httpadapter.NewMetrics(promReg)

	factory := mcp.NewFactory(logger)
	registry := session.NewRegistry(factory, logger,
		session.WithQueueSize(cfg.Events.QueueSize),
		session.WithCloseTimeout(cfg.CloseTimeoutDuration()),
		session.WithObserver(metrics),
	)

	store := storage.NewStore(cfg.Storage.Dir, logger)
	logger.Info("storage ready", "dir", store.Dir())

	var logSink io.Writer
	if cfg.LogSink.File != "" {
		logSink = &lumberjack.Logger{
			Filename:   cfg.LogSink.File,
			MaxSize:    cfg.LogSink.MaxSizeMB,
			MaxBackups: cfg.LogSink.MaxBackups,
			MaxAge:     cfg.LogSink.MaxAgeDays,
			Compress:   true,
		}
		logger.Info("client log sink enabled", "file", cfg.LogSink.File)
	}

	server := httpadapter.NewServer(registry, store,
		httpadapter.WithAddr(cfg.Server.Addr),
		httpadapter.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		httpadapter.WithAuthToken(cfg.Auth.Token),
		httpadapter.WithAuthDisabled(cfg.Auth.DangerouslyOmitAuth),
		httpadapter.WithRequestTimeout(cfg.RequestTimeoutDuration()),
		httpadapter.WithShutdownTimeout(cfg.ShutdownTimeoutDuration()),
		httpadapter.WithLogSink(logSink),
		httpadapter.WithConfigDoc(configDoc(cfg)),
		httpadapter.WithMetrics(metrics, promReg),
		httpadapter.WithLogger(logger),
	)

	announce(cfg, logger)

	return server.Start(ctx)
}

// configDoc maps the initial-config seed into the /api/config document.
func configDoc(cfg *config.Config) httpadapter.ConfigDoc {
	return httpadapter.ConfigDoc{
		DefaultCommand:     cfg.Initial.Command,
		DefaultArgs:        cfg.Initial.Args,
		DefaultTransport:   cfg.Initial.Transport,
		DefaultServerURL:   cfg.Initial.ServerURL,
		DefaultEnvironment: cfg.Initial.Environment,
		SandboxURL:         cfg.Initial.SandboxURL,
	}
}

// announce prints the connection details an inspector client needs. The
// token goes to stderr with the logs, never to any client-visible surface.
func announce(cfg *config.Config, logger *slog.Logger) {
	switch {
	case cfg.Auth.DangerouslyOmitAuth:
		logger.Warn("bearer auth is DISABLED; origin checks remain active")
	case cfg.Auth.TokenGenerated():
		fmt.Fprintf(os.Stderr, "\nAPI token (generated): %s\n", cfg.Auth.Token)
		fmt.Fprintf(os.Stderr, "Pass it as: x-mcp-remote-auth: Bearer %s\n\n", cfg.Auth.Token)
	default:
		logger.Info("using configured API token")
	}
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
