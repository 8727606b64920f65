//go:build !windows

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mcpglass/mcpglass/internal/port/outbound"
)

// hookRecorder collects hook invocations for transport tests.
type hookRecorder struct {
	mu       sync.Mutex
	messages []json.RawMessage
	stderr   []string
	errs     []error
	closed   chan struct{}
}

func newHookRecorder() *hookRecorder {
	return &hookRecorder{closed: make(chan struct{})}
}

func (h *hookRecorder) hooks() outbound.Hooks {
	return outbound.Hooks{
		OnMessage: func(frame json.RawMessage) {
			h.mu.Lock()
			h.messages = append(h.messages, frame)
			h.mu.Unlock()
		},
		OnStderr: func(ts time.Time, line string) {
			h.mu.Lock()
			h.stderr = append(h.stderr, line)
			h.mu.Unlock()
		},
		OnError: func(err error) {
			h.mu.Lock()
			h.errs = append(h.errs, err)
			h.mu.Unlock()
		},
		OnClose: func() { close(h.closed) },
	}
}

func (h *hookRecorder) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-h.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("transport never fired OnClose")
	}
}

func (h *hookRecorder) messageCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

func TestStdioTransport_EchoRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := newHookRecorder()
	// cat echoes each stdin line back on stdout.
	tr := NewStdio("cat", nil, nil, "", rec.hooks(), nil)

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	frame := json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	if err := tr.Send(context.Background(), frame, ""); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for rec.messageCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	rec.mu.Lock()
	if len(rec.messages) != 1 {
		rec.mu.Unlock()
		t.Fatalf("got %d messages, want 1", rec.messageCount())
	}
	if string(rec.messages[0]) != string(frame) {
		t.Errorf("echoed frame = %s, want %s", rec.messages[0], frame)
	}
	rec.mu.Unlock()

	_ = tr.Close()
	rec.waitClosed(t)
}

func TestStdioTransport_StderrForwarded(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := newHookRecorder()
	tr := NewStdio("sh", []string{"-c", `echo "boot warning" >&2; sleep 5`}, nil, "", rec.hooks(), nil)

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer tr.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec.mu.Lock()
		n := len(rec.stderr)
		rec.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.stderr) == 0 {
		t.Fatal("no stderr lines forwarded")
	}
	if rec.stderr[0] != "boot warning" {
		t.Errorf("stderr line = %q, want %q", rec.stderr[0], "boot warning")
	}
}

func TestStdioTransport_NonJSONLinesDropped(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := newHookRecorder()
	tr := NewStdio("sh", []string{"-c", `echo "not json"; echo '{"jsonrpc":"2.0","id":1}'`}, nil, "", rec.hooks(), nil)

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	rec.waitClosed(t)
	_ = tr.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.messages) != 1 {
		t.Fatalf("got %d messages, want 1 (non-JSON dropped)", len(rec.messages))
	}
}

func TestStdioTransport_SpawnFailureIsStartError(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := newHookRecorder()
	tr := NewStdio("definitely-not-a-real-binary-xyz", nil, nil, "", rec.hooks(), nil)

	err := tr.Start(context.Background())
	var se *outbound.StartError
	if !errors.As(err, &se) {
		t.Fatalf("Start() error = %v, want StartError", err)
	}
	_ = tr.Close()
}

func TestStdioTransport_ImmediateExitReportsError(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := newHookRecorder()
	tr := NewStdio("sh", []string{"-c", "exit 3"}, nil, "", rec.hooks(), nil)

	// Spawn succeeds; death is reported asynchronously.
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	rec.waitClosed(t)
	_ = tr.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(rec.errs))
	}
	if !strings.Contains(rec.errs[0].Error(), "process exited") {
		t.Errorf("error = %q, want process exit message", rec.errs[0])
	}
}

func TestStdioTransport_EnvPassedToChild(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := newHookRecorder()
	tr := NewStdio("sh", []string{"-c", `echo "{\"env\":\"$MCPGLASS_TEST_VAR\"}"`},
		map[string]string{"MCPGLASS_TEST_VAR": "hello"}, "", rec.hooks(), nil)

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	rec.waitClosed(t)
	_ = tr.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(rec.messages))
	}
	if string(rec.messages[0]) != `{"env":"hello"}` {
		t.Errorf("child env frame = %s", rec.messages[0])
	}
}

func TestStdioTransport_CloseIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := newHookRecorder()
	tr := NewStdio("cat", nil, nil, "", rec.hooks(), nil)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	rec.waitClosed(t)

	if err := tr.Send(context.Background(), json.RawMessage(`{}`), ""); err == nil {
		t.Error("Send() after Close succeeded, want error")
	}
}
