package mcp

import (
	"net/http"

	"github.com/mcpglass/mcpglass/internal/domain/upstream"
)

// TokenInjector is a minimal OAuth provider shim: an http.RoundTripper that
// surfaces a pre-issued access token as an Authorization header on every
// upstream request. It is a read-only adapter over credentials the client
// already acquired; it performs no metadata persistence, code-verifier
// handling, refresh, or redirects.
type TokenInjector struct {
	tokens *upstream.Tokens
	next   http.RoundTripper
}

// NewTokenInjector wraps next. With nil tokens the injector is a pure
// passthrough.
func NewTokenInjector(tokens *upstream.Tokens, next http.RoundTripper) *TokenInjector {
	if next == nil {
		next = http.DefaultTransport
	}
	return &TokenInjector{tokens: tokens, next: next}
}

// RoundTrip implements http.RoundTripper. An Authorization header already
// present on the request (from explicit upstream headers) wins over the
// token set.
func (t *TokenInjector) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.tokens != nil && t.tokens.AccessToken != "" && req.Header.Get("Authorization") == "" {
		clone := req.Clone(req.Context())
		clone.Header.Set("Authorization", t.tokens.AuthorizationHeader())
		return t.next.RoundTrip(clone)
	}
	return t.next.RoundTrip(req)
}

var _ http.RoundTripper = (*TokenInjector)(nil)
