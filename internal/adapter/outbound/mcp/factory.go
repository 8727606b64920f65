package mcp

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mcpglass/mcpglass/internal/adapter/outbound/trace"
	"github.com/mcpglass/mcpglass/internal/domain/event"
	"github.com/mcpglass/mcpglass/internal/domain/upstream"
	"github.com/mcpglass/mcpglass/internal/port/outbound"
)

// NewFactory returns a session.TransportFactory-compatible constructor. Each
// HTTP-based transport gets its own traced client so fetch entries land in
// the owning session's queue. The token injector sits beneath the tracer:
// the credential is added after the trace snapshot, keeping the raw token
// out of the UI.
func NewFactory(logger *slog.Logger) func(cfg upstream.Config, hooks outbound.Hooks, tokens *upstream.Tokens) (outbound.Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(cfg upstream.Config, hooks outbound.Hooks, tokens *upstream.Tokens) (outbound.Transport, error) {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}

		switch cfg.Type {
		case upstream.KindStdio:
			return NewStdio(cfg.Command, cfg.Args, cfg.Env, cfg.Cwd, hooks, logger), nil
		case upstream.KindSSE:
			client := tracedClient(hooks, tokens)
			return NewSSE(cfg.URL, cfg.Headers, client, hooks, logger), nil
		case upstream.KindStreamableHTTP:
			client := tracedClient(hooks, tokens)
			return NewStreamable(cfg.URL, cfg.Headers, client, hooks, logger), nil
		default:
			return nil, fmt.Errorf("unknown transport type %q", cfg.Type)
		}
	}
}

// tracedClient builds the HTTP client shared by a transport's requests. No
// overall timeout: SSE streams are long-lived; individual requests are
// bounded by their contexts.
func tracedClient(hooks outbound.Hooks, tokens *upstream.Tokens) *http.Client {
	var rt http.RoundTripper = &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	}
	rt = NewTokenInjector(tokens, rt)

	sink := trace.Sink(nil)
	if hooks.OnFetch != nil {
		sink = func(entry event.FetchTrace) { hooks.OnFetch(entry) }
	}
	return &http.Client{
		Transport: trace.NewRoundTripper(rt, event.CategoryTransport, sink),
	}
}
