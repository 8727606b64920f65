// Package mcp provides the upstream transport adapters: stdio subprocess,
// legacy HTTP+SSE, and streamable HTTP. All three implement
// outbound.Transport and report their output through outbound.Hooks.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mcpglass/mcpglass/internal/port/outbound"
)

const (
	// scannerInitialBufSize is the initial buffer size for frame scanners.
	scannerInitialBufSize = 256 * 1024 // 256KB
	// scannerMaxBufSize caps a single newline-delimited frame. Frames beyond
	// this size make the scanner fail with bufio.ErrTooLong.
	scannerMaxBufSize = 4 * 1024 * 1024 // 4MB
)

// StdioTransport spawns an MCP server as a child process and relays
// newline-delimited JSON-RPC over its stdin/stdout. Stderr lines are
// surfaced through Hooks.OnStderr.
type StdioTransport struct {
	command string
	args    []string
	env     map[string]string
	cwd     string
	hooks   outbound.Hooks
	logger  *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	started bool
	closed  bool

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewStdio creates a stdio transport. Hooks must be fully wired before Start
// is called.
func NewStdio(command string, args []string, env map[string]string, cwd string, hooks outbound.Hooks, logger *slog.Logger) *StdioTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &StdioTransport{
		command: command,
		args:    args,
		env:     env,
		cwd:     cwd,
		hooks:   hooks,
		logger:  logger,
	}
}

// Start spawns the child process and begins pumping its stdout and stderr.
// A spawn failure (missing executable, bad cwd) is returned as a
// *outbound.StartError. A process that spawns and then exits immediately is
// reported asynchronously as a transport_error, which the broker contract
// permits.
func (t *StdioTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return errors.New("transport already started")
	}

	// The process must outlive the connect request, so its lifetime is
	// managed by Close rather than the caller's context.
	cmd := exec.Command(t.command, t.args...)
	cmd.Dir = t.cwd
	cmd.Env = os.Environ()
	for k, v := range t.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &outbound.StartError{Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return &outbound.StartError{Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return &outbound.StartError{Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return &outbound.StartError{Err: fmt.Errorf("failed to start transport: %w", err)}
	}

	t.cmd = cmd
	t.stdin = stdin
	t.started = true

	// Readers must drain before Wait per os/exec pipe semantics.
	var readers sync.WaitGroup
	readers.Add(2)
	t.wg.Add(3)

	go func() {
		defer t.wg.Done()
		defer readers.Done()
		t.pumpStdout(stdout)
	}()
	go func() {
		defer t.wg.Done()
		defer readers.Done()
		t.pumpStderr(stderr)
	}()
	go func() {
		defer t.wg.Done()
		readers.Wait()
		waitErr := cmd.Wait()
		t.reportExit(waitErr)
	}()

	t.logger.Debug("stdio transport started", "command", t.command, "pid", cmd.Process.Pid)
	return nil
}

// Send writes one frame to the child's stdin, newline-terminated.
// relatedRequestID is accepted for interface symmetry; stdio needs no
// request correlation.
func (t *StdioTransport) Send(ctx context.Context, frame json.RawMessage, relatedRequestID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		return errors.New("transport not started")
	}
	if t.closed {
		return errors.New("transport closed")
	}

	if _, err := t.stdin.Write(append(frame, '\n')); err != nil {
		return fmt.Errorf("write to child stdin: %w", err)
	}
	return nil
}

// Close terminates the child process and waits for the pump goroutines, so
// no hook fires after Close returns.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	if !t.started || t.closed {
		alreadyStarted := t.started
		t.closed = true
		t.mu.Unlock()
		if !alreadyStarted {
			t.fireClose()
		}
		return nil
	}
	t.closed = true
	stdin := t.stdin
	cmd := t.cmd
	t.mu.Unlock()

	var errs []error
	if err := stdin.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close stdin: %w", err))
	}
	if cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, fmt.Errorf("kill process: %w", err))
		}
	}

	t.wg.Wait()
	return errors.Join(errs...)
}

// pumpStdout forwards each stdout line as a JSON-RPC frame. Frames are
// relayed verbatim; invalid JSON lines are dropped with a log entry rather
// than killing the transport.
func (t *StdioTransport) pumpStdout(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, scannerInitialBufSize), scannerMaxBufSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			t.logger.Warn("dropping non-JSON line from upstream stdout", "bytes", len(line))
			continue
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		if t.hooks.OnMessage != nil {
			t.hooks.OnMessage(frame)
		}
	}
	if err := scanner.Err(); err != nil {
		t.logger.Debug("stdout pump ended", "error", err)
	}
}

// pumpStderr forwards each stderr line with its arrival timestamp.
func (t *StdioTransport) pumpStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerMaxBufSize)
	for scanner.Scan() {
		if t.hooks.OnStderr != nil {
			t.hooks.OnStderr(time.Now(), scanner.Text())
		}
	}
}

// reportExit fires OnError (for unexpected exits) and the single OnClose.
func (t *StdioTransport) reportExit(waitErr error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()

	if !closed {
		msg := "process exited"
		if waitErr != nil {
			msg = fmt.Sprintf("process exited: %v", waitErr)
		}
		t.logger.Info("upstream process exited", "command", t.command, "error", waitErr)
		if t.hooks.OnError != nil {
			t.hooks.OnError(errors.New(msg))
		}
	}
	t.fireClose()
}

func (t *StdioTransport) fireClose() {
	t.closeOnce.Do(func() {
		if t.hooks.OnClose != nil {
			t.hooks.OnClose()
		}
	})
}

// Compile-time check that StdioTransport implements the transport port.
var _ outbound.Transport = (*StdioTransport)(nil)
