// Package trace wraps an HTTP client so that every outbound request yields a
// fetch trace entry for the inspector UI: request/response headers, inlined
// bodies where safe, wall-clock duration, and errors. The wrapper never
// alters observable request or response behavior.
package trace

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mcpglass/mcpglass/internal/domain/event"
)

// captureBodyLimit caps how much body text is copied into a trace entry.
// The body itself is passed through untouched.
const captureBodyLimit = 1 << 20 // 1MB

// Sink receives completed trace entries.
type Sink func(entry event.FetchTrace)

// RoundTripper is an http.RoundTripper that records a FetchTrace for every
// request it carries.
type RoundTripper struct {
	next     http.RoundTripper
	category string
	sink     Sink
}

// NewRoundTripper wraps next (nil selects http.DefaultTransport). category
// is event.CategoryAuth or event.CategoryTransport.
func NewRoundTripper(next http.RoundTripper, category string, sink Sink) *RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &RoundTripper{next: next, category: category, sink: sink}
}

// Client returns an *http.Client whose transport is traced. The base
// client's timeout and other settings are preserved.
func Client(base *http.Client, category string, sink Sink) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	traced := *base
	traced.Transport = NewRoundTripper(base.Transport, category, sink)
	return &traced
}

// RoundTrip implements http.RoundTripper.
func (t *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	entry := event.FetchTrace{
		ID:             uuid.NewString(),
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
		Method:         req.Method,
		URL:            req.URL.String(),
		RequestHeaders: flattenHeader(req.Header),
		Category:       t.category,
	}

	// GetBody yields a fresh copy, so reading it leaves the request intact.
	// A body without GetBody is a true stream: the field stays absent.
	if req.GetBody != nil {
		if rc, err := req.GetBody(); err == nil {
			body, _ := io.ReadAll(io.LimitReader(rc, captureBodyLimit))
			_ = rc.Close()
			entry.RequestBody = string(body)
		}
	}

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	entry.DurationMS = float64(time.Since(start)) / float64(time.Millisecond)

	if err != nil {
		entry.Error = err.Error()
		t.emit(entry)
		return nil, err
	}

	entry.ResponseStatus = resp.StatusCode
	entry.ResponseStatusText = http.StatusText(resp.StatusCode)
	entry.ResponseHeaders = flattenHeader(resp.Header)

	if !StreamingContentType(resp.Header.Get("Content-Type")) && resp.Body != nil {
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			entry.Error = readErr.Error()
			t.emit(entry)
			return nil, readErr
		}
		if len(body) > captureBodyLimit {
			entry.ResponseBody = string(body[:captureBodyLimit])
		} else {
			entry.ResponseBody = string(body)
		}
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}

	t.emit(entry)
	return resp, nil
}

func (t *RoundTripper) emit(entry event.FetchTrace) {
	if t.sink != nil {
		t.sink(entry)
	}
}

// StreamingContentType reports whether a response body must not be consumed
// for capture because doing so would break streaming semantics.
func StreamingContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	return mediaType == "text/event-stream" || mediaType == "application/x-ndjson"
}

// flattenHeader renders an http.Header as a single-valued map, joining
// repeated values the way the Fetch API does.
func flattenHeader(h http.Header) map[string]string {
	if len(h) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(h))
	for k, vs := range h {
		out[k] = strings.Join(vs, ", ")
	}
	return out
}
