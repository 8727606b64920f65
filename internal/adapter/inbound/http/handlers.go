package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/mcpglass/mcpglass/internal/domain/session"
	"github.com/mcpglass/mcpglass/internal/domain/upstream"
	"github.com/mcpglass/mcpglass/internal/port/outbound"
	"github.com/mcpglass/mcpglass/pkg/mcp"
)

// connectRequest is the body of POST /api/mcp/connect.
type connectRequest struct {
	Config      *upstream.Config `json:"config"`
	OAuthTokens *upstream.Tokens `json:"oauthTokens"`
}

// handleConnect opens a session: builds and starts the upstream transport,
// registers the session, and returns its ID. An upstream 401 during start
// maps to 401 so the client can begin its OAuth flow; every other start
// failure is a 500 with the captured error text.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context())

	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errValidation, "invalid JSON body: "+err.Error())
		return
	}
	if req.Config == nil {
		writeError(w, http.StatusBadRequest, errValidation, "missing config")
		return
	}
	if err := req.Config.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, errValidation, err.Error())
		return
	}

	sess, err := s.registry.Create(r.Context(), *req.Config, req.OAuthTokens)
	if err != nil {
		if isUnauthorized(err) {
			logger.Info("upstream requires authentication", "transport", req.Config.Type)
			writeError(w, http.StatusUnauthorized, errAuth, err.Error())
			return
		}
		logger.Warn("transport start failed", "transport", req.Config.Type, "error", err)
		writeError(w, http.StatusInternalServerError, errUpstream, "Failed to start transport: "+err.Error())
		return
	}

	writeJSON(w, map[string]string{"sessionId": sess.ID()})
}

// isUnauthorized classifies a start failure as an upstream auth demand.
// A structured StartError status is authoritative; the text fallback covers
// wrapped client errors that only carry the status in their message.
func isUnauthorized(err error) bool {
	var se *outbound.StartError
	if errors.As(err, &se) {
		return se.HTTPStatus == http.StatusUnauthorized
	}
	msg := err.Error()
	return strings.Contains(msg, "401") || strings.Contains(msg, "Unauthorized")
}

// sendRequest is the body of POST /api/mcp/send. RelatedRequestID is a
// string or a number on the wire; it is normalized to its string form.
type sendRequest struct {
	SessionID        string          `json:"sessionId"`
	Message          json.RawMessage `json:"message"`
	RelatedRequestID json.RawMessage `json:"relatedRequestId"`
}

// handleSend relays one JSON-RPC frame to the session's upstream. A frame
// sent after the transport has died yields a 500 carrying the preserved
// transport error text.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errValidation, "invalid JSON body: "+err.Error())
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, errValidation, "missing sessionId")
		return
	}
	if len(req.Message) == 0 {
		writeError(w, http.StatusBadRequest, errValidation, "missing message")
		return
	}
	if err := mcp.ValidateFrame(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, errValidation, err.Error())
		return
	}

	sess, ok := s.registry.Get(req.SessionID)
	if !ok {
		writeError(w, http.StatusNotFound, errNotFound, "unknown session: "+req.SessionID)
		return
	}

	if err := sess.Send(r.Context(), req.Message, relatedRequestID(req.RelatedRequestID)); err != nil {
		var dead *session.DeadTransportError
		if errors.As(err, &dead) {
			writeError(w, http.StatusInternalServerError, errUpstream, dead.Message)
			return
		}
		writeError(w, http.StatusInternalServerError, errUpstream, err.Error())
		return
	}

	writeJSON(w, okBody)
}

// relatedRequestID renders the wire value (string or number) as a string.
func relatedRequestID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return strconv.FormatFloat(num, 'f', -1, 64)
	}
	return ""
}

// disconnectRequest is the body of POST /api/mcp/disconnect.
type disconnectRequest struct {
	SessionID string `json:"sessionId"`
}

// handleDisconnect tears the session down. Idempotent: disconnecting an
// unknown or already-closed session still succeeds.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req disconnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errValidation, "invalid JSON body: "+err.Error())
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, errValidation, "missing sessionId")
		return
	}

	s.registry.Delete(req.SessionID)
	writeJSON(w, okBody)
}
