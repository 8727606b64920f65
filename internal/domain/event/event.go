// Package event defines the broker's session event variants. Every
// observable upstream occurrence (a JSON-RPC frame, a stderr line, an HTTP
// fetch trace, transport death) is normalized into an Event before it enters
// a session's queue, so the SSE fan-out can stream them uniformly.
package event

import (
	"encoding/json"
	"time"
)

// Type identifies the event variant. The value doubles as the SSE event name.
type Type string

const (
	// TypeMessage carries an upstream JSON-RPC frame, forwarded verbatim.
	TypeMessage Type = "message"
	// TypeStderr carries one line of upstream stderr (stdio transports only).
	TypeStderr Type = "stderr"
	// TypeFetchRequest carries a FetchTrace captured by the fetch tracer.
	TypeFetchRequest Type = "fetch_request"
	// TypeTransportError is terminal: emitted exactly once when the upstream
	// transport dies. No further events follow it.
	TypeTransportError Type = "transport_error"
)

// Event is one entry in a session's queue. Data is the JSON payload exactly
// as it will appear on the SSE data line.
type Event struct {
	Type Type
	Data json.RawMessage
}

// Terminal reports whether the event ends the session's stream.
// Terminal events are never dropped by queue overflow.
func (e Event) Terminal() bool {
	return e.Type == TypeTransportError
}

// StderrPayload is the data shape for stderr events.
type StderrPayload struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// TransportErrorPayload is the data shape for transport_error events.
// Code carries a JSON-RPC error code or an HTTP status when one is known.
type TransportErrorPayload struct {
	Error string `json:"error"`
	Code  *int   `json:"code,omitempty"`
}

// Message wraps a raw JSON-RPC frame. The frame is not inspected.
func Message(frame json.RawMessage) Event {
	return Event{Type: TypeMessage, Data: frame}
}

// Stderr wraps one line of upstream stderr output.
func Stderr(ts time.Time, line string) Event {
	data, _ := json.Marshal(StderrPayload{
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
		Message:   line,
	})
	return Event{Type: TypeStderr, Data: data}
}

// FetchRequest wraps a fetch trace entry.
func FetchRequest(entry FetchTrace) Event {
	data, _ := json.Marshal(entry)
	return Event{Type: TypeFetchRequest, Data: data}
}

// TransportError builds the terminal event for a dead transport.
func TransportError(msg string, code *int) Event {
	data, _ := json.Marshal(TransportErrorPayload{Error: msg, Code: code})
	return Event{Type: TypeTransportError, Data: data}
}
