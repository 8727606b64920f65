package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcpglass/mcpglass/internal/adapter/outbound/storage"
	"github.com/mcpglass/mcpglass/internal/domain/session"
)

// Server is the broker's HTTP front end. It owns the listener and routes
// every /api endpoint through the origin and bearer policy chain.
type Server struct {
	registry *session.Registry
	store    *storage.Store

	addr            string
	allowedOrigins  []string
	authToken       string
	authDisabled    bool
	requestTimeout  time.Duration
	shutdownTimeout time.Duration
	logSink         io.Writer
	configDoc       ConfigDoc
	fetchClient     *http.Client
	logger          *slog.Logger

	metrics   *Metrics
	gatherer  prometheus.Gatherer
	server    *http.Server
	startedAt time.Time
}

// Option is a functional option for configuring Server.
type Option func(*Server)

// WithAddr sets the listen address.
// Default is "127.0.0.1:6277" (localhost only).
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithAllowedOrigins sets the allowed origins for DNS rebinding protection.
// If empty, all requests with an Origin header are blocked (local-only mode).
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithAuthToken sets the expected x-mcp-remote-auth bearer token.
func WithAuthToken(token string) Option {
	return func(s *Server) {
		s.authToken = token
	}
}

// WithAuthDisabled turns off the bearer check. Origin validation stays on.
func WithAuthDisabled(disabled bool) Option {
	return func(s *Server) {
		s.authDisabled = disabled
	}
}

// WithRequestTimeout bounds non-streaming request handling. The events
// endpoint is exempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.requestTimeout = d
	}
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.shutdownTimeout = d
	}
}

// WithLogSink sets the writer receiving POST /api/log records, one JSON
// line each. Nil discards records.
func WithLogSink(sink io.Writer) Option {
	return func(s *Server) {
		s.logSink = sink
	}
}

// WithConfigDoc sets the document served by GET /api/config.
func WithConfigDoc(doc ConfigDoc) Option {
	return func(s *Server) {
		s.configDoc = doc
	}
}

// WithFetchClient sets the HTTP client backing POST /api/fetch.
func WithFetchClient(c *http.Client) Option {
	return func(s *Server) {
		s.fetchClient = c
	}
}

// WithMetrics installs a pre-built metric set and the gatherer backing the
// /metrics endpoint. The same Metrics value is normally installed as the
// session registry's observer.
func WithMetrics(m *Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// WithLogger sets the logger for the HTTP server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates the broker HTTP server over the given session registry
// and key-value store.
func NewServer(registry *session.Registry, store *storage.Store, opts ...Option) *Server {
	s := &Server{
		registry:        registry,
		store:           store,
		addr:            "127.0.0.1:6277",
		requestTimeout:  30 * time.Second,
		shutdownTimeout: 10 * time.Second,
		fetchClient:     &http.Client{Timeout: 30 * time.Second},
		logger:          slog.Default(),
		startedAt:       time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Handler builds the full routing tree. Exposed for tests.
func (s *Server) Handler() http.Handler {
	if s.metrics == nil {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		s.metrics = NewMetrics(reg)
		s.gatherer = reg
	}

	api := mux.NewRouter()
	api.HandleFunc("/api/mcp/connect", s.withTimeout(s.handleConnect)).Methods(http.MethodPost)
	api.HandleFunc("/api/mcp/send", s.withTimeout(s.handleSend)).Methods(http.MethodPost)
	api.HandleFunc("/api/mcp/disconnect", s.withTimeout(s.handleDisconnect)).Methods(http.MethodPost)
	// Long-lived SSE stream: no request timeout.
	api.HandleFunc("/api/mcp/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/api/fetch", s.withTimeout(s.handleFetch)).Methods(http.MethodPost)
	api.HandleFunc("/api/log", s.withTimeout(s.handleLog)).Methods(http.MethodPost)
	api.HandleFunc("/api/storage/{storeId}", s.withTimeout(s.handleStorageGet)).Methods(http.MethodGet)
	api.HandleFunc("/api/storage/{storeId}", s.withTimeout(s.handleStoragePut)).Methods(http.MethodPost)
	api.HandleFunc("/api/storage/{storeId}", s.withTimeout(s.handleStorageDelete)).Methods(http.MethodDelete)
	api.HandleFunc("/api/config", s.withTimeout(s.handleConfig)).Methods(http.MethodGet)

	// Policy chain wraps the whole /api subtree, outermost first:
	// Metrics -> RequestID -> Origin (answers preflight) -> Auth -> routes.
	var protected http.Handler = api
	protected = AuthMiddleware(s.authToken, s.authDisabled)(protected)
	protected = OriginMiddleware(s.allowedOrigins)(protected)
	protected = RequestIDMiddleware(s.logger)(protected)
	protected = MetricsMiddleware(s.metrics)(protected)

	root := mux.NewRouter()
	root.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	root.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	root.PathPrefix("/api/").Handler(protected)

	return root
}

// withTimeout bounds the request context. Handlers and the transports they
// call observe the deadline through ctx; the connection itself stays usable.
func (s *Server) withTimeout(h http.HandlerFunc) http.HandlerFunc {
	if s.requestTimeout <= 0 {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
		defer cancel()
		h(w, r.WithContext(ctx))
	}
}

// Start begins serving and blocks until the context is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down HTTP server")
		return s.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown performs graceful shutdown of the HTTP server. Open SSE streams
// hold connections, so streams are interrupted by closing sessions first.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	// Closing sessions makes every events stream observe a terminal event.
	s.registry.ShutdownAll()

	if err := s.server.Shutdown(ctx); err != nil {
		// Events streams stay open past the terminal event, so they do not
		// drain on their own; drop whatever is left.
		s.logger.Warn("graceful shutdown timed out, closing remaining connections", "error", err)
		return s.server.Close()
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	return s.shutdown()
}
