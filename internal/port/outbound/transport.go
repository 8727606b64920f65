// Package outbound defines the outbound port interfaces for connecting
// to upstream MCP servers.
package outbound

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcpglass/mcpglass/internal/domain/event"
)

// Transport is the outbound port for one upstream MCP connection. Adapters
// implement this for the three transport kinds (stdio subprocess, SSE,
// streamable HTTP).
//
// Lifecycle: created -> Start -> running -> closed or failed. A terminal
// failure after Start produces Hooks.OnError (when the cause is known)
// followed by exactly one Hooks.OnClose. After Close returns, no hook is
// invoked again.
type Transport interface {
	// Start opens the upstream channel. For stdio this spawns the process;
	// for SSE it subscribes the event stream; for streamable HTTP it opens
	// the standalone server stream. A transport that dies while starting
	// must surface that from Start, not succeed and then fire OnClose.
	Start(ctx context.Context) error

	// Send pushes one JSON-RPC frame upstream. relatedRequestID optionally
	// ties the frame to an earlier request (empty when unrelated). The frame
	// is relayed verbatim; the transport does not interpret it.
	Send(ctx context.Context, frame json.RawMessage, relatedRequestID string) error

	// Close releases all transport resources. Hooks are not invoked after
	// Close returns. Safe to call more than once.
	Close() error
}

// Hooks receives a transport's asynchronous output. All fields are optional;
// nil hooks are skipped. Implementations must install hooks before Start so
// no early output is lost.
type Hooks struct {
	// OnMessage delivers one upstream JSON-RPC frame, verbatim.
	OnMessage func(frame json.RawMessage)
	// OnStderr delivers one line of upstream stderr (stdio transports only).
	OnStderr func(ts time.Time, line string)
	// OnFetch delivers one fetch trace entry (HTTP-based transports only).
	OnFetch func(entry event.FetchTrace)
	// OnError reports a terminal transport failure. Fired at most once,
	// always before OnClose.
	OnError func(err error)
	// OnClose signals the transport is gone. Fired exactly once per
	// transport lifetime, whether the close was clean or not.
	OnClose func()
}

// StartError is returned when a transport fails to open its upstream
// channel. HTTPStatus carries the upstream HTTP status when one was
// observed (401 lets the broker answer connect with 401).
type StartError struct {
	HTTPStatus int
	Err        error
}

func (e *StartError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("upstream returned HTTP %d: %v", e.HTTPStatus, e.Err)
	}
	return e.Err.Error()
}

func (e *StartError) Unwrap() error { return e.Err }
