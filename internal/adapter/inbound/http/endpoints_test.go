package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func doRequest(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	return resp
}

func TestStorageEndpoints(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	base := ts.URL + "/api/storage/oauth_client_a"

	// Fresh store reads as the empty document.
	resp := doRequest(t, http.MethodGet, base, "")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "{}" {
		t.Errorf("fresh GET = %d %q, want 200 {}", resp.StatusCode, body)
	}

	// Round-trip.
	doc := `{"client_id":"abc","tokens":{"access_token":"tok"}}`
	resp = postJSON(t, base, doc)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST status = %d", resp.StatusCode)
	}
	resp = doRequest(t, http.MethodGet, base, "")
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != doc {
		t.Errorf("GET after POST = %q, want %q", body, doc)
	}

	// Delete is idempotent and resets to the empty document.
	for i := 0; i < 2; i++ {
		resp = doRequest(t, http.MethodDelete, base, "")
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("DELETE %d status = %d", i, resp.StatusCode)
		}
	}
	resp = doRequest(t, http.MethodGet, base, "")
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "{}" {
		t.Errorf("GET after DELETE = %q, want {}", body)
	}
}

func TestStorage_RejectsBadInput(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)

	// Store IDs are a restricted character set; dots would allow path games.
	resp := doRequest(t, http.MethodGet, ts.URL+"/api/storage/a.b", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid storeId status = %d, want 400", resp.StatusCode)
	}
	var eb errorBody
	decodeBody(t, resp, &eb)
	if eb.Error != errValidation {
		t.Errorf("error tag = %q", eb.Error)
	}

	resp = postJSON(t, ts.URL+"/api/storage/valid_id", `{not json`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("non-JSON body status = %d, want 400", resp.StatusCode)
	}
}

func TestFetchProxy(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			body, _ := io.ReadAll(r.Body)
			if !strings.Contains(string(body), "grant_type") {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, `{"access_token":"tok"}`)
		case "/stream":
			w.Header().Set("Content-Type", "text/event-stream")
			io.WriteString(w, "data: hi\n\n")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(upstream.Close)

	ts, _ := newTestServer(t)

	// Normal response bodies are inlined.
	req, _ := json.Marshal(map[string]any{
		"url":    upstream.URL + "/token",
		"method": "POST",
		"body":   "grant_type=authorization_code",
	})
	resp := postJSON(t, ts.URL+"/api/fetch", string(req))
	var out fetchResponse
	decodeBody(t, resp, &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fetch status = %d", resp.StatusCode)
	}
	if out.Status != http.StatusCreated || out.StatusText != "Created" {
		t.Errorf("proxied status = %d %q", out.Status, out.StatusText)
	}
	if out.Body == nil || *out.Body != `{"access_token":"tok"}` {
		t.Errorf("proxied body = %v", out.Body)
	}
	if out.Headers["Content-Type"] != "application/json" {
		t.Errorf("proxied headers = %v", out.Headers)
	}

	// Streaming content types are reported without a body.
	req, _ = json.Marshal(map[string]string{"url": upstream.URL + "/stream"})
	resp = postJSON(t, ts.URL+"/api/fetch", string(req))
	out = fetchResponse{}
	decodeBody(t, resp, &out)
	if !out.OK || out.Body != nil {
		t.Errorf("streaming fetch: ok=%v body=%v, want ok with nil body", out.OK, out.Body)
	}
}

func TestFetchProxy_Validation(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing url", `{}`},
		{"bad scheme", `{"url":"file:///etc/passwd"}`},
		{"bad json", `{broken`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/fetch", tt.body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

// syncBuffer guards a bytes.Buffer against the handler goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLogEndpoint(t *testing.T) {
	t.Parallel()

	sink := &syncBuffer{}
	ts, _ := newTestServer(t, WithLogSink(sink))

	resp := postJSON(t, ts.URL+"/api/log", `{
		"level": "error",
		"message": "connection refused"
	}`)
	var body map[string]bool
	decodeBody(t, resp, &body)
	if resp.StatusCode != http.StatusOK || !body["ok"] {
		t.Fatalf("log status = %d, body %v", resp.StatusCode, body)
	}

	// Records land compacted, one per line.
	got := sink.String()
	if got != `{"level":"error","message":"connection refused"}`+"\n" {
		t.Errorf("sink = %q", got)
	}

	resp = postJSON(t, ts.URL+"/api/log", `not json`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid record status = %d, want 400", resp.StatusCode)
	}
}

func TestLogEndpoint_NoSink(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/log", `{"message":"hello"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("log without sink status = %d, want 200", resp.StatusCode)
	}
}

func TestConfigEndpoint(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, WithConfigDoc(ConfigDoc{
		DefaultCommand:   "npx",
		DefaultArgs:      "@modelcontextprotocol/server-everything",
		DefaultTransport: "stdio",
	}))

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/config", "")
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("bad config doc %q: %v", raw, err)
	}
	if doc["defaultCommand"] != "npx" || doc["defaultTransport"] != "stdio" {
		t.Errorf("config doc = %s", raw)
	}
	// Always present, even when empty, so clients can iterate it blindly.
	if _, ok := doc["defaultEnvironment"]; !ok {
		t.Error("defaultEnvironment missing from config doc")
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	connectSession(t, ts.URL)

	resp := doRequest(t, http.MethodGet, ts.URL+"/healthz", "")
	var out struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	decodeBody(t, resp, &out)
	if out.Status != "ok" || out.Sessions != 1 {
		t.Errorf("health = %+v", out)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	// Drive one request through the measured chain first.
	resp := doRequest(t, http.MethodGet, ts.URL+"/api/config", "")
	resp.Body.Close()

	resp = doRequest(t, http.MethodGet, ts.URL+"/metrics", "")
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(raw), "mcpglass_requests_total") {
		t.Error("mcpglass_requests_total not exported")
	}
}
