package http

import (
	"net/http"
	"time"
)

// MetricsMiddleware wraps an HTTP handler to record Prometheus metrics.
// It records:
// - request_duration_seconds histogram (by method)
// - requests_total counter (by method and status)
func MetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap ResponseWriter to capture status code
			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			metrics.RequestDuration.WithLabelValues(r.Method).Observe(duration)
			metrics.RequestsTotal.WithLabelValues(r.Method, statusToLabel(wrapped.status)).Inc()
		})
	}
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush delegates to the underlying ResponseWriter if it supports http.Flusher.
// This is required for SSE (Server-Sent Events) connections to work through the metrics middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// statusToLabel converts HTTP status code to label value
func statusToLabel(code int) string {
	if code >= 200 && code < 400 {
		return "ok"
	}
	return "error"
}
