// Package middleware provides HTTP middleware for metrics collection.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ldelacroix/conveyor/internal/metrics"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := normalizeEndpoint(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		metrics.RecordHTTPRequest(r.Method, endpoint, status, duration)
	})
}

// normalizeEndpoint keeps the label cardinality bounded: known routes map
// to themselves, everything else collapses to a single bucket.
func normalizeEndpoint(path string) string {
	path = strings.TrimRight(path, "/")
	if path == "" {
		path = "/"
	}

	switch path {
	case "/api/uploads", "/api/uploads/clear",
		"/api/jobs", "/api/jobs/refresh",
		"/api/outstanding", "/api/insights",
		"/api/dashboard/stats", "/metrics":
		return path
	default:
		return "other"
	}
}
