// Package session implements the broker's session model: each session owns
// one upstream transport, a bounded FIFO event queue, and at most one bound
// consumer draining that queue. The session's mutex is the single sequencer:
// events from the transport reader, the stderr reader, and the fetch tracer
// are interleaved in lock-acquisition order.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpglass/mcpglass/internal/domain/event"
	"github.com/mcpglass/mcpglass/internal/port/outbound"
)

// DefaultQueueSize bounds a session's event queue. When the queue is full
// the oldest non-terminal event is dropped; terminal events are never
// dropped.
const DefaultQueueSize = 4096

// ErrPreempted is returned from Consumer.Next when a newer consumer has
// bound to the session. The preempted consumer receives no further events.
var ErrPreempted = errors.New("consumer preempted by a newer events stream")

// DeadTransportError is returned from Send once the session's transport has
// died. Message preserves the transport's last error text so the broker can
// relay it verbatim.
type DeadTransportError struct {
	Message string
}

func (e *DeadTransportError) Error() string { return e.Message }

// Session ties one client-visible session ID to one upstream transport.
type Session struct {
	id     string
	logger *slog.Logger

	mu        sync.Mutex
	transport outbound.Transport
	queue     []event.Event
	queueSize int
	wake      chan struct{} // closed and replaced whenever the queue grows
	gen       int           // consumer generation; increments on every bind
	bound     bool

	dead       bool // monotonic: never flips back
	lastErr    string
	lastCode   *int
	pendingErr string // recorded by handleError, consumed by handleClose
	pendingCod *int

	dropped uint64
	onDrop  func() // optional metrics hook
}

// New creates a session with the given ID. queueSize <= 0 selects
// DefaultQueueSize. onDrop, when non-nil, is invoked once per event dropped
// to queue overflow.
func New(id string, queueSize int, logger *slog.Logger, onDrop func()) *Session {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:        id,
		logger:    logger.With("session_id", id),
		queueSize: queueSize,
		wake:      make(chan struct{}),
		onDrop:    onDrop,
	}
}

// GenerateID creates a cryptographically random 128-bit session ID rendered
// as 32 hex characters (URL-safe).
func GenerateID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ID returns the immutable session identifier.
func (s *Session) ID() string { return s.id }

// SetTransport attaches the transport. Called exactly once, before the
// transport is started (and therefore before any event arrives).
func (s *Session) SetTransport(t outbound.Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport != nil {
		panic("session: transport set twice")
	}
	s.transport = t
}

// Hooks returns the transport hook set wired into this session. The returned
// hooks are safe for concurrent invocation from multiple goroutines.
func (s *Session) Hooks() outbound.Hooks {
	return outbound.Hooks{
		OnMessage: func(frame json.RawMessage) { s.enqueue(event.Message(frame)) },
		OnStderr:  func(ts time.Time, line string) { s.enqueue(event.Stderr(ts, line)) },
		OnFetch:   func(entry event.FetchTrace) { s.enqueue(event.FetchRequest(entry)) },
		OnError:   s.handleError,
		OnClose:   s.handleClose,
	}
}

// Send relays one frame to the upstream transport. Once the transport is
// dead it returns a DeadTransportError carrying the preserved error text.
func (s *Session) Send(ctx context.Context, frame json.RawMessage, relatedRequestID string) error {
	s.mu.Lock()
	if s.dead {
		msg := s.lastErr
		s.mu.Unlock()
		if msg == "" {
			msg = "transport closed"
		}
		return &DeadTransportError{Message: msg}
	}
	t := s.transport
	s.mu.Unlock()

	return t.Send(ctx, frame, relatedRequestID)
}

// Dead reports whether the transport has died, with the preserved error text.
func (s *Session) Dead() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dead, s.lastErr
}

// QueueLen returns the number of undelivered events.
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Dropped returns how many events were lost to queue overflow.
func (s *Session) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close shuts down the session's transport. Idempotent; the terminal event
// (if the transport was still alive) is enqueued through the usual OnClose
// hook path.
func (s *Session) Close() error {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.Close()
}

// enqueue appends one event, dropping the oldest non-terminal event on
// overflow, and wakes any waiting consumer. Non-terminal events arriving
// after transport death are discarded: transport_error is always last.
func (s *Session) enqueue(ev event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dead && !ev.Terminal() {
		return
	}

	if len(s.queue) >= s.queueSize {
		if i := s.oldestDroppable(); i >= 0 {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.dropped++
			if s.onDrop != nil {
				s.onDrop()
			}
		} else if !ev.Terminal() {
			s.dropped++
			if s.onDrop != nil {
				s.onDrop()
			}
			return
		}
	}

	s.queue = append(s.queue, ev)
	close(s.wake)
	s.wake = make(chan struct{})
}

// oldestDroppable returns the index of the first non-terminal queued event,
// or -1 when every queued event is terminal.
func (s *Session) oldestDroppable() int {
	for i, ev := range s.queue {
		if !ev.Terminal() {
			return i
		}
	}
	return -1
}

// handleError records the transport's terminal failure cause. The terminal
// event itself is emitted by handleClose, which the transport contract
// guarantees follows every OnError.
func (s *Session) handleError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return
	}
	s.pendingErr = err.Error()
	var se *outbound.StartError
	if errors.As(err, &se) && se.HTTPStatus != 0 {
		code := se.HTTPStatus
		s.pendingCod = &code
	}
}

// handleClose marks the transport dead (monotonically) and enqueues the one
// terminal transport_error event for this session's lifetime.
func (s *Session) handleClose() {
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		return
	}
	s.dead = true
	s.lastErr = s.pendingErr
	s.lastCode = s.pendingCod
	if s.lastErr == "" {
		s.lastErr = "transport closed"
	}
	lastErr, lastCode := s.lastErr, s.lastCode
	s.mu.Unlock()

	s.logger.Info("transport closed", "error", lastErr)
	s.enqueue(event.TransportError(lastErr, lastCode))
}
