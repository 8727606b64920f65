// Package upstream defines the configuration types describing how the broker
// reaches an upstream MCP server: a spawned subprocess speaking stdio, a
// legacy HTTP+SSE endpoint, or a streamable HTTP endpoint.
package upstream

import (
	"errors"
	"fmt"
	"net/url"
)

// Kind selects the transport variant.
type Kind string

const (
	// KindStdio spawns a child process and speaks newline-delimited JSON-RPC
	// over its stdin/stdout.
	KindStdio Kind = "stdio"
	// KindSSE connects to a legacy HTTP+SSE server: a GET event stream for
	// receiving, a POSTed endpoint for sending.
	KindSSE Kind = "sse"
	// KindStreamableHTTP connects to a streamable HTTP server: frames are
	// POSTed, responses arrive inline or as SSE streams.
	KindStreamableHTTP Kind = "streamableHttp"
)

// Config describes one upstream MCP server. The zero value is invalid;
// Validate reports what is missing for the selected kind.
type Config struct {
	Type Kind `json:"type"`

	// Stdio fields.
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`

	// HTTP-based fields.
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Validate checks that the config is complete for its kind.
func (c *Config) Validate() error {
	switch c.Type {
	case KindStdio:
		if c.Command == "" {
			return errors.New("stdio transport requires a command")
		}
	case KindSSE, KindStreamableHTTP:
		if c.URL == "" {
			return fmt.Errorf("%s transport requires a url", c.Type)
		}
		u, err := url.Parse(c.URL)
		if err != nil {
			return fmt.Errorf("invalid url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("unsupported url scheme %q", u.Scheme)
		}
	case "":
		return errors.New("missing transport type")
	default:
		return fmt.Errorf("unknown transport type %q", c.Type)
	}
	return nil
}

// Tokens is a pre-issued OAuth token set supplied by the client on connect.
// The broker never runs the OAuth ceremony itself; it only injects the
// access token into HTTP-based transports.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    *int64 `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// AuthorizationHeader renders the Authorization header value for the token
// set. The token type defaults to Bearer when unset.
func (t *Tokens) AuthorizationHeader() string {
	typ := t.TokenType
	if typ == "" {
		typ = "Bearer"
	}
	return typ + " " + t.AccessToken
}
