// Package mcp provides thin JSON-RPC frame utilities for the broker. The
// broker relays frames verbatim and never enforces MCP semantics; these
// helpers only establish that a relayed payload is a well-formed JSON-RPC
// message and expose the few fields the broker logs.
package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// ValidateFrame checks that raw parses as a single JSON-RPC request or
// response. The decoded form is discarded; relaying always uses the raw
// bytes.
func ValidateFrame(raw json.RawMessage) error {
	if _, err := jsonrpc.DecodeMessage(raw); err != nil {
		return fmt.Errorf("invalid JSON-RPC message: %w", err)
	}
	return nil
}

// Method returns the method name when raw is a request, or "" otherwise.
// Used for log enrichment only.
func Method(raw json.RawMessage) string {
	msg, err := jsonrpc.DecodeMessage(raw)
	if err != nil {
		return ""
	}
	if req, ok := msg.(*jsonrpc.Request); ok {
		return req.Method
	}
	return ""
}

// IsResponse reports whether raw is a JSON-RPC response.
func IsResponse(raw json.RawMessage) bool {
	msg, err := jsonrpc.DecodeMessage(raw)
	if err != nil {
		return false
	}
	_, ok := msg.(*jsonrpc.Response)
	return ok
}

// NewRequest encodes a request frame. Intended for tests and probes; the
// broker itself never fabricates frames on the relay path.
func NewRequest(id int64, method string, params any) (json.RawMessage, error) {
	jid, err := jsonrpc.MakeID(float64(id))
	if err != nil {
		return nil, err
	}
	req := &jsonrpc.Request{ID: jid, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		req.Params = raw
	}
	return jsonrpc.EncodeMessage(req)
}
