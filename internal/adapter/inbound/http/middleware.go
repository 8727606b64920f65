package http

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/mcpglass/mcpglass/internal/ctxkey"
)

// requestIDContextKey is the type for the request ID context key.
type requestIDContextKey struct{}

// RequestIDKey is the context key for the request ID.
var RequestIDKey = requestIDContextKey{}

// LoggerKey is the context key for the enriched logger.
// Uses shared key type from ctxkey package to allow cross-package access without import cycles.
var LoggerKey = ctxkey.LoggerKey{}

// RequestIDMiddleware extracts or generates a request ID and enriches the logger.
// The request ID is stored in context using RequestIDKey.
// An enriched logger with request_id field is stored using LoggerKey.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			enrichedLogger := logger.With("request_id", requestID)

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = context.WithValue(ctx, LoggerKey, enrichedLogger)

			// Set response header for correlation
			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext retrieves the enriched logger from context.
// Returns slog.Default() if no logger is in context.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// preflightMaxAge is how long browsers may cache a preflight result.
const preflightMaxAge = 86400

// OriginMiddleware validates the Origin header against an allowlist and
// answers CORS preflight. This blocks DNS rebinding: a page on an attacker
// origin cannot drive the broker even though it listens on localhost.
// Requests without an Origin header pass (same-origin or non-browser).
// With an empty allowlist every request carrying an Origin is refused.
func OriginMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	wildcard := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			wildcard = true
		}
		allowed[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				_, ok := allowed[origin]
				if !ok && !wildcard {
					writeError(w, http.StatusForbidden, errOrigin, "origin not allowed: "+origin)
					return
				}
				// Echo the origin so credentialed requests work; never "*".
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, x-mcp-remote-auth")
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(preflightMaxAge))
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuthMiddleware enforces the bearer token carried in x-mcp-remote-auth.
// The header lives outside Authorization so it survives OAuth flows that
// need Authorization for the upstream. Comparison is constant-time over
// SHA-256 digests, which also hides the length of the configured token.
// Preflight requests are exempt; OriginMiddleware has already answered them.
func AuthMiddleware(token string, disabled bool) func(http.Handler) http.Handler {
	expected := sha256.Sum256([]byte("Bearer " + token))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if disabled || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			got := sha256.Sum256([]byte(r.Header.Get("x-mcp-remote-auth")))
			if subtle.ConstantTimeCompare(got[:], expected[:]) != 1 {
				writeError(w, http.StatusUnauthorized, errAuth,
					"missing or invalid x-mcp-remote-auth bearer token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
