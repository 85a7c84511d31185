package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// --------------------------------------------------------------------------
// Middleware (logging & metrics)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func wrapWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := wrapWriter(w)

		next.ServeHTTP(rw, r)

		replicated := ""
		if !replicate(r) {
			replicated = " (replicated)"
		}
		Logger.Debugf("%s %s%s => %d took %s", r.Method, r.URL.Path, replicated, rw.statusCode, time.Since(start))
	}
}

// instrument records request count and duration of route
func instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	duration := metrics.GetOrCreateHistogram(fmt.Sprintf(`rkv_http_request_duration_seconds{route=%q}`, route))
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := wrapWriter(w)

		next.ServeHTTP(rw, r)

		duration.UpdateDuration(start)
		metrics.GetOrCreateCounter(fmt.Sprintf(`rkv_http_requests_total{route=%q,code="%d"}`, route, rw.statusCode)).Inc()
	}
}
