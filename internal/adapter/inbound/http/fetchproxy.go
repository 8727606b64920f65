package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mcpglass/mcpglass/internal/adapter/outbound/trace"
)

// fetchRequest is the body of POST /api/fetch. The broker performs the
// request on the client's behalf so browser UIs can reach OAuth endpoints
// that do not send CORS headers.
type fetchRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// fetchResponse mirrors the Fetch API's response surface.
type fetchResponse struct {
	OK         bool              `json:"ok"`
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	Body       *string           `json:"body,omitempty"`
}

// handleFetch proxies one HTTP request. Upstream failures are reported in
// the 200 envelope (ok=false is the Fetch API's job, transport errors are
// a 500 here); streaming response bodies are never inlined.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context())

	var req fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errValidation, "invalid JSON body: "+err.Error())
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, errValidation, "missing url")
		return
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		writeError(w, http.StatusBadRequest, errValidation, "url must be http or https")
		return
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	outReq, err := http.NewRequestWithContext(r.Context(), method, req.URL, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, errValidation, err.Error())
		return
	}
	for k, v := range req.Headers {
		outReq.Header.Set(k, v)
	}

	resp, err := s.fetchClient.Do(outReq)
	if err != nil {
		logger.Warn("fetch proxy request failed", "url", req.URL, "error", err)
		writeError(w, http.StatusInternalServerError, errUpstream, err.Error())
		return
	}
	defer resp.Body.Close()

	out := fetchResponse{
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    flattenHeader(resp.Header),
	}

	if !trace.StreamingContentType(resp.Header.Get("Content-Type")) {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			writeError(w, http.StatusInternalServerError, errUpstream, err.Error())
			return
		}
		text := string(data)
		out.Body = &text
	}

	writeJSON(w, out)
}

// flattenHeader renders an http.Header as a single-valued map, joining
// repeated values the way the Fetch API does.
func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		out[k] = strings.Join(vs, ", ")
	}
	return out
}
