package http

import (
	"net/http"
	"time"
)

// handleHealth reports liveness, uptime, and the current session count.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":   "ok",
		"uptime":   time.Since(s.startedAt).Round(time.Second).String(),
		"sessions": s.registry.Size(),
	})
}
