// Package middleware holds the HTTP middleware of the operator API that chi
// does not ship. chi's own RequestID, RealIP and Recoverer cover the rest.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// statusRecorder remembers the first status code and counts body bytes.
// A handler that calls WriteHeader twice gets net/http's "superfluous"
// warning; the log keeps the status the client actually saw.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	written     int64
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *statusRecorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// Logger returns an HTTP middleware that logs each request using Go's slog package.
//
// Each log line includes: request id (from chi's RequestID middleware, so
// Logger must be mounted after it), method, path, status code, duration and
// bytes written. 5xx answers are logged at ERROR, 4xx at WARN, the rest at INFO.
// The query string is left out; it is the operator's business, not the log's.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			level := slog.LevelInfo
			switch {
			case wrapped.status >= 500:
				level = slog.LevelError
			case wrapped.status >= 400:
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "request completed",
				slog.String("request_id", chimiddleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
			)
		})
	}
}
