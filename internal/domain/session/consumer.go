package session

import (
	"context"

	"github.com/mcpglass/mcpglass/internal/domain/event"
)

// Consumer is a borrowed (non-owning) handle draining a session's event
// queue. At most one consumer is live per session; binding a new one
// preempts the previous deterministically, so no event is ever delivered to
// two consumers.
type Consumer struct {
	s   *Session
	gen int
}

// Bind attaches a new consumer to the session, preempting any previous one.
// Queued events are delivered to the new consumer in FIFO order before any
// live event.
func (s *Session) Bind() *Consumer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.bound = true
	// Wake a consumer parked in Next so it observes its preemption.
	close(s.wake)
	s.wake = make(chan struct{})
	return &Consumer{s: s, gen: s.gen}
}

// Next blocks until an event is available, the consumer is preempted, or ctx
// is done. A terminal transport_error event does not end the stream: the
// consumer keeps waiting (nothing further will arrive) until the client
// disconnects, mirroring an SSE connection that stays open after the
// upstream dies.
func (c *Consumer) Next(ctx context.Context) (event.Event, error) {
	for {
		c.s.mu.Lock()
		if c.gen != c.s.gen {
			c.s.mu.Unlock()
			return event.Event{}, ErrPreempted
		}
		if len(c.s.queue) > 0 {
			ev := c.s.queue[0]
			c.s.queue = c.s.queue[1:]
			c.s.mu.Unlock()
			return ev, nil
		}
		wake := c.s.wake
		c.s.mu.Unlock()

		select {
		case <-ctx.Done():
			return event.Event{}, ctx.Err()
		case <-wake:
		}
	}
}

// Close releases the consumer slot if this consumer is still the current
// one. It reports whether the session is now reapable: transport dead with
// no consumer bound.
func (c *Consumer) Close() (reapable bool) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.gen == c.s.gen {
		c.s.bound = false
	}
	return c.s.dead && !c.s.bound
}
