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
	"net/url"
	"sync"
	"time"

	"github.com/mcpglass/mcpglass/internal/port/outbound"
)

// sseHandshakeTimeout bounds the wait for the initial endpoint event.
const sseHandshakeTimeout = 10 * time.Second

// SSETransport speaks the legacy HTTP+SSE MCP transport: a long-lived GET
// stream carries server messages, and the server's first event names the
// endpoint URL to POST client frames to.
type SSETransport struct {
	baseURL string
	headers map[string]string
	client  *http.Client
	hooks   outbound.Hooks
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	endpoint string
	body     io.ReadCloser
	started  bool
	closed   bool

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSSE creates an SSE transport. client should already carry the fetch
// tracer and auth header injection.
func NewSSE(rawURL string, headers map[string]string, client *http.Client, hooks outbound.Hooks, logger *slog.Logger) *SSETransport {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SSETransport{
		baseURL: rawURL,
		headers: headers,
		client:  client,
		hooks:   hooks,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes the event stream and waits for the endpoint handshake.
// A non-200 upstream status is surfaced as *outbound.StartError carrying the
// HTTP status, so the broker can answer connect with 401 when the upstream
// demands auth.
func (t *SSETransport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return errors.New("transport already started")
	}
	t.mu.Unlock()

	req, err := http.NewRequestWithContext(t.ctx, http.MethodGet, t.baseURL, nil)
	if err != nil {
		return &outbound.StartError{Err: fmt.Errorf("build stream request: %w", err)}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return &outbound.StartError{Err: fmt.Errorf("connect to SSE stream: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return &outbound.StartError{
			HTTPStatus: resp.StatusCode,
			Err:        fmt.Errorf("SSE stream returned %s", resp.Status),
		}
	}

	reader := newSSEReader(resp.Body)
	endpoint, err := t.awaitEndpoint(reader)
	if err != nil {
		_ = resp.Body.Close()
		return &outbound.StartError{Err: err}
	}

	t.mu.Lock()
	t.endpoint = endpoint
	t.body = resp.Body
	t.started = true
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.pumpStream(reader)
	}()

	t.logger.Debug("sse transport started", "url", t.baseURL, "endpoint", endpoint)
	return nil
}

// awaitEndpoint reads the handshake event naming the POST endpoint. The
// endpoint value may be relative to the stream URL.
func (t *SSETransport) awaitEndpoint(reader *sseReader) (string, error) {
	type result struct {
		ev  sseEvent
		err error
	}
	ch := make(chan result, 1)
	go func() {
		ev, err := reader.next()
		ch <- result{ev, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return "", fmt.Errorf("read endpoint event: %w", res.err)
		}
		if res.ev.name != "endpoint" || res.ev.data == "" {
			return "", fmt.Errorf("expected endpoint event, got %q", res.ev.name)
		}
		base, err := url.Parse(t.baseURL)
		if err != nil {
			return "", err
		}
		ref, err := url.Parse(res.ev.data)
		if err != nil {
			return "", fmt.Errorf("invalid endpoint %q: %w", res.ev.data, err)
		}
		return base.ResolveReference(ref).String(), nil
	case <-time.After(sseHandshakeTimeout):
		return "", errors.New("timed out waiting for endpoint event")
	}
}

// pumpStream forwards message events until the stream dies.
func (t *SSETransport) pumpStream(reader *sseReader) {
	defer t.fireClose()

	for {
		ev, err := reader.next()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if !closed && !errors.Is(err, io.EOF) && t.hooks.OnError != nil {
				t.hooks.OnError(fmt.Errorf("SSE stream closed: %w", err))
			} else if !closed && errors.Is(err, io.EOF) && t.hooks.OnError != nil {
				t.hooks.OnError(errors.New("SSE stream closed by upstream"))
			}
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

// Send POSTs one frame to the handshake endpoint.
func (t *SSETransport) Send(ctx context.Context, frame json.RawMessage, relatedRequestID string) error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return errors.New("transport not started")
	}
	if t.closed {
		t.mu.Unlock()
		return errors.New("transport closed")
	}
	endpoint := t.endpoint
	t.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(frame))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("upstream rejected message: HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return nil
}

// Close tears down the stream. The pump goroutine fires the single OnClose
// before Close returns.
func (t *SSETransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	started := t.started
	body := t.body
	t.mu.Unlock()

	t.cancel()
	if body != nil {
		_ = body.Close()
	}
	t.wg.Wait()
	if !started {
		t.fireClose()
	}
	return nil
}

func (t *SSETransport) fireClose() {
	t.closeOnce.Do(func() {
		if t.hooks.OnClose != nil {
			t.hooks.OnClose()
		}
	})
}

var _ outbound.Transport = (*SSETransport)(nil)
