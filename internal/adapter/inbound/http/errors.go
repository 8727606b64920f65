package http

import (
	"encoding/json"
	"net/http"
)

// Error tags, one per taxonomy class. The tag is machine-readable; the
// message carries the human-readable detail.
const (
	errValidation = "validation_error"
	errAuth       = "authentication_required"
	errOrigin     = "origin_forbidden"
	errNotFound   = "not_found"
	errUpstream   = "upstream_error"
	errInternal   = "internal_error"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError renders a taxonomy error. Failures past this point are not
// recoverable, so the encode error is ignored.
func writeError(w http.ResponseWriter, status int, tag, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: tag, Message: message})
}

// writeJSON renders a 200 response with the given body.
func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// okBody is the generic success response for endpoints with nothing to say.
var okBody = map[string]bool{"ok": true}
