package event

// Trace categories. Auth traces originate from OAuth machinery, transport
// traces from the MCP transport itself.
const (
	CategoryAuth      = "auth"
	CategoryTransport = "transport"
)

// FetchTrace records one HTTP request/response observed by the fetch tracer.
//
// RequestBody is present only when the outgoing body was inlineable (not a
// stream). ResponseBody is omitted for streaming content types
// (text/event-stream, application/x-ndjson) where consuming the body would
// break the stream. On a network error only the request fields and Error are
// set.
type FetchTrace struct {
	ID                 string            `json:"id"`
	Timestamp          string            `json:"timestamp"`
	Method             string            `json:"method"`
	URL                string            `json:"url"`
	RequestHeaders     map[string]string `json:"requestHeaders"`
	RequestBody        string            `json:"requestBody,omitempty"`
	ResponseStatus     int               `json:"responseStatus,omitempty"`
	ResponseStatusText string            `json:"responseStatusText,omitempty"`
	ResponseHeaders    map[string]string `json:"responseHeaders,omitempty"`
	ResponseBody       string            `json:"responseBody,omitempty"`
	// DurationMS is wall-clock milliseconds from call entry until response
	// headers were received (or the error surfaced).
	DurationMS float64 `json:"duration"`
	Error      string  `json:"error,omitempty"`
	Category   string  `json:"category"`
}
