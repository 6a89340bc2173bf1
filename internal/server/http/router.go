package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/catface996/aiops-executor/internal/logging"
	"github.com/catface996/aiops-executor/internal/observability"
	"github.com/catface996/aiops-executor/internal/server/app"
	"github.com/catface996/aiops-executor/internal/server/ports"
)

// NewRouter builds the subsystem's HTTP handler (spec.md §4.6): a Go 1.22+
// ServeMux with method-specific patterns, wrapped in the logging middleware,
// grounded in the teacher's router.go.
func NewRouter(manager *app.Manager, runs ports.RunRepository, events ports.EventRepository, registry *app.Registry, obs *observability.Observability) http.Handler {
	logger := logging.NewComponentLogger("Router")
	handlers := NewHandlers(manager, runs, events, registry)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/runs", handlers.HandleStartRun)
	mux.HandleFunc("GET /api/runs", handlers.HandleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", handlers.HandleGetRun)
	mux.HandleFunc("GET /api/runs/{id}/stream", handlers.HandleStreamRun)
	mux.HandleFunc("POST /api/runs/{id}/cancel", handlers.HandleCancelRun)
	mux.HandleFunc("GET /api/runs/{id}/events", handlers.HandleGetRunEvents)

	if obs != nil && obs.Metrics != nil && obs.Metrics.Registry() != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(obs.Metrics.Registry(), promhttp.HandlerOpts{}))
	}

	var handler http.Handler = mux
	handler = LoggingMiddleware(logger)(handler)
	return handler
}
