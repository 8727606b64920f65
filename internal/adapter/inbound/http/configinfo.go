package http

import "net/http"

// ConfigDoc is the read-only document served by GET /api/config. It seeds
// the inspector UI's connect form; none of it is enforced server-side.
type ConfigDoc struct {
	DefaultCommand     string            `json:"defaultCommand,omitempty"`
	DefaultArgs        string            `json:"defaultArgs,omitempty"`
	DefaultTransport   string            `json:"defaultTransport,omitempty"`
	DefaultServerURL   string            `json:"defaultServerUrl,omitempty"`
	DefaultEnvironment map[string]string `json:"defaultEnvironment"`
	SandboxURL         string            `json:"sandboxUrl,omitempty"`
}

// handleConfig serves the initial-config document.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	doc := s.configDoc
	if doc.DefaultEnvironment == nil {
		doc.DefaultEnvironment = map[string]string{}
	}
	writeJSON(w, doc)
}
