package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/mcpglass/mcpglass/internal/adapter/outbound/storage"
	"github.com/mcpglass/mcpglass/internal/domain/session"
	"github.com/mcpglass/mcpglass/internal/domain/upstream"
	"github.com/mcpglass/mcpglass/internal/port/outbound"
)

// testTransport is a controllable upstream for handler tests.
type testTransport struct {
	hooks outbound.Hooks

	mu       sync.Mutex
	sent     []json.RawMessage
	startErr error

	closeOnce sync.Once
}

func (f *testTransport) Start(ctx context.Context) error { return f.startErr }

func (f *testTransport) Send(ctx context.Context, frame json.RawMessage, relatedRequestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, frame)
	return nil
}

func (f *testTransport) Close() error {
	f.closeOnce.Do(func() {
		if f.hooks.OnClose != nil {
			f.hooks.OnClose()
		}
	})
	return nil
}

// fail drives the async death path: OnError then OnClose.
func (f *testTransport) fail(err error) {
	if f.hooks.OnError != nil {
		f.hooks.OnError(err)
	}
	f.Close()
}

// testBackend bundles a server with hooks into its fake upstreams.
type testBackend struct {
	registry *session.Registry

	mu         sync.Mutex
	transports []*testTransport
	startErr   error
}

func (b *testBackend) factory(cfg upstream.Config, hooks outbound.Hooks, tokens *upstream.Tokens) (outbound.Transport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ft := &testTransport{hooks: hooks, startErr: b.startErr}
	b.transports = append(b.transports, ft)
	return ft, nil
}

func (b *testBackend) lastTransport(t *testing.T) *testTransport {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.transports) == 0 {
		t.Fatal("no transport was created")
	}
	return b.transports[len(b.transports)-1]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer builds a server over fake transports and a temp-dir store.
// Auth is disabled unless an option overrides it.
func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *testBackend) {
	t.Helper()

	backend := &testBackend{}
	backend.registry = session.NewRegistry(backend.factory, testLogger())
	store := storage.NewStore(t.TempDir(), testLogger())

	all := append([]Option{WithAuthDisabled(true), WithLogger(testLogger())}, opts...)
	srv := NewServer(backend.registry, store, all...)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(backend.registry.ShutdownAll)
	return ts, backend
}
