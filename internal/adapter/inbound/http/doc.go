// Package http is the broker's inbound HTTP adapter. It exposes the
// /api/mcp session endpoints, the SSE event stream, the fetch proxy, the
// log sink, the key-value storage endpoints, and the initial-config
// document, with origin and bearer-token policy enforced at the edge.
package http
