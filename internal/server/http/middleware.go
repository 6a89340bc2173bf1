package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/catface996/aiops-executor/internal/id"
	"github.com/catface996/aiops-executor/internal/logging"
)

// LoggingMiddleware logs every request's method, path, remote address, and
// duration, tagging the request context with a log id so downstream
// component loggers correlate (grounded in the teacher's
// middleware_logging.go).
func LoggingMiddleware(logger logging.Logger) func(http.Handler) http.Handler {
	logger = logging.OrNop(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logID := resolveLogID(r)
			if logID == "" {
				logID = id.NewLogID()
			}
			ctx = id.WithLogID(ctx, logID)
			w.Header().Set("X-Log-Id", logID)

			reqLogger := logging.WithLogID(logger, logID)
			start := time.Now()
			reqLogger.Info("%s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
			next.ServeHTTP(w, r.WithContext(ctx))
			reqLogger.Debug("%s %s completed in %s", r.Method, r.URL.Path, time.Since(start))
		})
	}
}

func resolveLogID(r *http.Request) string {
	for _, header := range []string{"X-Log-Id", "X-Request-Id", "X-Correlation-Id"} {
		if value := strings.TrimSpace(r.Header.Get(header)); value != "" {
			return value
		}
	}
	return ""
}
