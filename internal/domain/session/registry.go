package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpglass/mcpglass/internal/domain/upstream"
	"github.com/mcpglass/mcpglass/internal/port/outbound"
)

// TransportFactory builds a transport for the given upstream config with the
// hooks pre-installed, so no output emitted during start is lost. tokens may
// be nil.
type TransportFactory func(cfg upstream.Config, hooks outbound.Hooks, tokens *upstream.Tokens) (outbound.Transport, error)

// Observer receives registry lifecycle notifications. Used to feed metrics
// without the domain importing the metrics stack.
type Observer interface {
	SessionOpened()
	SessionClosed()
	EventDropped()
}

// nopObserver is used when no observer is configured.
type nopObserver struct{}

func (nopObserver) SessionOpened() {}
func (nopObserver) SessionClosed() {}
func (nopObserver) EventDropped()  {}

// Registry is the process-wide session table. All map mutations happen under
// one mutex; the lock is never held across transport I/O.
type Registry struct {
	factory      TransportFactory
	queueSize    int
	closeTimeout time.Duration
	logger       *slog.Logger
	obs          Observer

	mu       sync.Mutex
	sessions map[string]*Session
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithQueueSize overrides the per-session event queue bound.
func WithQueueSize(n int) RegistryOption {
	return func(r *Registry) { r.queueSize = n }
}

// WithCloseTimeout bounds how long ShutdownAll waits for each transport to
// close before force-removing the session.
func WithCloseTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.closeTimeout = d }
}

// WithObserver installs a lifecycle observer.
func WithObserver(obs Observer) RegistryOption {
	return func(r *Registry) { r.obs = obs }
}

// NewRegistry creates an empty registry using factory to build transports.
func NewRegistry(factory TransportFactory, logger *slog.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		factory:      factory,
		queueSize:    DefaultQueueSize,
		closeTimeout: 5 * time.Second,
		logger:       logger,
		obs:          nopObserver{},
		sessions:     make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create builds a session around a freshly started transport and registers
// it. On a start failure the transport is closed and the error (possibly an
// *outbound.StartError carrying an upstream HTTP status) is returned.
func (r *Registry) Create(ctx context.Context, cfg upstream.Config, tokens *upstream.Tokens) (*Session, error) {
	id, err := GenerateID()
	if err != nil {
		return nil, err
	}

	s := New(id, r.queueSize, r.logger, r.obs.EventDropped)
	t, err := r.factory(cfg, s.Hooks(), tokens)
	if err != nil {
		return nil, err
	}
	s.SetTransport(t)

	if err := t.Start(ctx); err != nil {
		_ = t.Close()
		return nil, err
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	r.obs.SessionOpened()

	r.logger.Info("session created", "session_id", id, "transport", cfg.Type)
	return s, nil
}

// Get looks up a session by ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Size returns the number of registered sessions.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Delete closes the session's transport and removes it from the table.
// Safe to call for unknown IDs and to call repeatedly.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return
	}

	if err := s.Close(); err != nil {
		r.logger.Warn("error closing session transport", "session_id", id, "error", err)
	}
	r.obs.SessionClosed()
	r.logger.Info("session removed", "session_id", id)
}

// Reap removes the session if its transport is dead and no consumer is
// bound. Called by the SSE fan-out when a consumer unbinds.
func (r *Registry) Reap(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return
	}
	if dead, _ := s.Dead(); dead {
		r.Delete(id)
	}
}

// ShutdownAll closes every session, bounding each close by the registry's
// close timeout. Close errors are logged and swallowed; every session is
// removed regardless.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			done := make(chan error, 1)
			go func() { done <- s.Close() }()
			select {
			case err := <-done:
				if err != nil {
					r.logger.Warn("error during session shutdown", "session_id", s.ID(), "error", err)
				}
			case <-time.After(r.closeTimeout):
				r.logger.Warn("session close timed out, force-removing", "session_id", s.ID())
			}
			r.obs.SessionClosed()
		}(s)
	}
	wg.Wait()
}
