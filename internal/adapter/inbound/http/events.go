package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mcpglass/mcpglass/internal/domain/session"
)

// handleEvents is the SSE fan-out: one long-lived GET per session streaming
// every queued and live event. Binding preempts any previous consumer for
// the same session, so a reconnecting client silently takes over. The
// stream stays open after a terminal transport_error; it ends only when
// the client disconnects or a newer consumer binds.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context())

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, errValidation, "missing sessionId query parameter")
		return
	}

	sess, ok := s.registry.Get(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, errNotFound, "unknown session: "+sessionID)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errInternal, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Flush headers now so the client sees the stream is live before the
	// first event arrives.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	consumer := sess.Bind()
	defer func() {
		if reapable := consumer.Close(); reapable {
			s.registry.Reap(sessionID)
		}
	}()

	logger.Debug("events stream opened", "session_id", sessionID)

	for {
		ev, err := consumer.Next(r.Context())
		if err != nil {
			if errors.Is(err, session.ErrPreempted) {
				logger.Debug("events stream preempted", "session_id", sessionID)
			}
			return
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, ev.Data); err != nil {
			return
		}
		flusher.Flush()
	}
}
