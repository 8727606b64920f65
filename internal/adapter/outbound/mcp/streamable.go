package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/mcpglass/mcpglass/internal/port/outbound"
)

// mcpProtocolVersion is advertised on streamable HTTP requests.
const mcpProtocolVersion = "2025-06-18"

// mcpSessionIDHeader carries the server-assigned streamable session ID.
const mcpSessionIDHeader = "Mcp-Session-Id"

// StreamableTransport speaks the streamable HTTP MCP transport: client
// frames are POSTed to the endpoint; the server answers each POST inline
// (application/json) or with a per-request SSE stream, and may additionally
// offer a standalone GET stream for server-initiated messages.
type StreamableTransport struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
	hooks    outbound.Hooks
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	sessionID string
	started   bool
	closed    bool

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewStreamable creates a streamable HTTP transport. client should already
// carry the fetch tracer and auth header injection.
func NewStreamable(endpoint string, headers map[string]string, client *http.Client, hooks outbound.Hooks, logger *slog.Logger) *StreamableTransport {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &StreamableTransport{
		endpoint: endpoint,
		headers:  headers,
		client:   client,
		hooks:    hooks,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start probes the endpoint with a standalone GET stream request. Servers
// that support server-initiated messages keep the stream open and its
// messages are forwarded; servers that don't typically answer 405 or 400,
// which is not an error. A 401 is fatal and carries the status so the
// broker can answer connect with 401.
func (t *StreamableTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return errors.New("transport already started")
	}
	t.mu.Unlock()

	req, err := http.NewRequestWithContext(t.ctx, http.MethodGet, t.endpoint, nil)
	if err != nil {
		return &outbound.StartError{Err: fmt.Errorf("build stream request: %w", err)}
	}
	req.Header.Set("Accept", "text/event-stream")
	t.applyHeaders(req.Header)

	resp, err := t.client.Do(req)
	if err != nil {
		return &outbound.StartError{Err: fmt.Errorf("connect to upstream: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		t.captureSessionID(resp)
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.pumpStream(resp.Body)
		}()
	case resp.StatusCode == http.StatusUnauthorized:
		_ = resp.Body.Close()
		return &outbound.StartError{
			HTTPStatus: http.StatusUnauthorized,
			Err:        fmt.Errorf("upstream requires authorization: %s", resp.Status),
		}
	default:
		// 405/404/400: no standalone stream; POST-only operation.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		t.logger.Debug("standalone stream unavailable", "status", resp.StatusCode)
	}

	t.mu.Lock()
	t.started = true
	t.mu.Unlock()
	return nil
}

// Send POSTs one frame. Inline JSON responses and per-request SSE streams
// both end up on OnMessage. relatedRequestID tags frames that answer a
// server-initiated request; the correlation itself lives in the frame's id,
// so it needs no extra wire representation here.
func (t *StreamableTransport) Send(ctx context.Context, frame json.RawMessage, relatedRequestID string) error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return errors.New("transport not started")
	}
	if t.closed {
		t.mu.Unlock()
		return errors.New("transport closed")
	}
	t.mu.Unlock()

	// The POST may answer with a per-request SSE stream that outlives the
	// caller's request, so it is tied to the transport's lifetime instead of
	// the caller's context.
	req, err := http.NewRequestWithContext(t.ctx, http.MethodPost, t.endpoint, bytes.NewReader(frame))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	t.applyHeaders(req.Header)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	t.captureSessionID(resp)

	switch {
	case resp.StatusCode == http.StatusAccepted:
		_ = resp.Body.Close()
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		_ = resp.Body.Close()
		return fmt.Errorf("upstream rejected message: HTTP 401 Unauthorized")
	case resp.StatusCode >= 400:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return fmt.Errorf("upstream rejected message: HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if isEventStream(resp.Header.Get("Content-Type")) {
		// The per-request stream delivers the response (and any interleaved
		// notifications) asynchronously.
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			defer func() { _ = resp.Body.Close() }()
			t.forwardEvents(resp.Body)
		}()
		return nil
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, scannerMaxBufSize))
	_ = resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("read response: %w", readErr)
	}
	if len(bytes.TrimSpace(body)) > 0 && t.hooks.OnMessage != nil {
		t.hooks.OnMessage(body)
	}
	return nil
}

// Close cancels in-flight streams and, if the server assigned a session,
// best-effort terminates it with a DELETE.
func (t *StreamableTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	sessionID := t.sessionID
	t.mu.Unlock()

	if sessionID != "" {
		req, err := http.NewRequest(http.MethodDelete, t.endpoint, nil)
		if err == nil {
			req.Header.Set(mcpSessionIDHeader, sessionID)
			t.applyHeaders(req.Header)
			if resp, derr := t.client.Do(req); derr == nil {
				_ = resp.Body.Close()
			}
		}
	}

	t.cancel()
	t.wg.Wait()
	t.fireClose()
	return nil
}

func (t *StreamableTransport) fireClose() {
	t.closeOnce.Do(func() {
		if t.hooks.OnClose != nil {
			t.hooks.OnClose()
		}
	})
}

// pumpStream forwards messages from the standalone GET stream. The stream
// ending does not kill the transport: POST operation continues, matching
// servers that drop idle streams.
func (t *StreamableTransport) pumpStream(body io.ReadCloser) {
	defer func() { _ = body.Close() }()
	t.forwardEvents(body)

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if !closed {
		t.logger.Debug("standalone stream ended")
	}
}

// forwardEvents relays each SSE message event as a frame.
func (t *StreamableTransport) forwardEvents(body io.Reader) {
	reader := newSSEReader(body)
	for {
		ev, err := reader.next()
		if err != nil {
			return
		}
		if ev.name != "message" || ev.data == "" {
			continue
		}
		if t.hooks.OnMessage != nil {
			t.hooks.OnMessage(json.RawMessage(ev.data))
		}
	}
}

// applyHeaders sets the configured extra headers, the protocol version, and
// the streamable session ID when one has been assigned.
func (t *StreamableTransport) applyHeaders(h http.Header) {
	h.Set("MCP-Protocol-Version", mcpProtocolVersion)
	for k, v := range t.headers {
		h.Set(k, v)
	}
	t.mu.Lock()
	if t.sessionID != "" {
		h.Set(mcpSessionIDHeader, t.sessionID)
	}
	t.mu.Unlock()
}

// captureSessionID remembers the server-assigned session ID.
func (t *StreamableTransport) captureSessionID(resp *http.Response) {
	if sid := resp.Header.Get(mcpSessionIDHeader); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}
}

// isEventStream reports whether a Content-Type denotes an SSE body.
func isEventStream(contentType string) bool {
	return len(contentType) >= len("text/event-stream") &&
		contentType[:len("text/event-stream")] == "text/event-stream"
}

var _ outbound.Transport = (*StreamableTransport)(nil)
