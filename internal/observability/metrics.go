package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector records Prometheus metrics for run execution. Grounded in
// the teacher's internal/infra/observability metrics collector: counters and
// histograms registered against a private registry, a disabled collector
// that no-ops every recording method rather than branching at each call
// site, and an optional bound HTTP server for the /metrics endpoint.
type MetricsCollector struct {
	enabled  bool
	registry *prometheus.Registry
	server   *http.Server

	runsStarted   *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	activeRuns    prometheus.Gauge
	dispatches    *prometheus.CounterVec
	eventsEmitted *prometheus.CounterVec
	subscribersDropped prometheus.Counter
}

// NewMetricsCollector builds a collector. When config.Enabled is false every
// recording method becomes a no-op and no registry or server is created.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{enabled: false}, nil
	}

	reg := prometheus.NewRegistry()
	c := &MetricsCollector{
		enabled:  true,
		registry: reg,
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runexec_runs_total",
			Help: "Total runs started, by terminal status once known.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "runexec_run_duration_seconds",
			Help:    "Run execution wall-clock duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "runexec_active_runs",
			Help: "Runs currently in the running state.",
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runexec_dispatches_total",
			Help: "dispatch_team/dispatch_worker invocations, by kind.",
		}, []string{"kind"}),
		eventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runexec_events_emitted_total",
			Help: "Events emitted, by category.",
		}, []string{"category"}),
		subscribersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "runexec_subscribers_dropped_total",
			Help: "SSE subscribers dropped for falling behind.",
		}),
	}

	reg.MustRegister(c.runsStarted, c.runDuration, c.activeRuns, c.dispatches, c.eventsEmitted, c.subscribersDropped)

	if config.PrometheusPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		c.server = &http.Server{Addr: portAddr(config.PrometheusPort), Handler: mux}
		go func() { _ = c.server.ListenAndServe() }()
	}

	return c, nil
}

// Registry exposes the underlying prometheus.Registry so the main HTTP
// facade can mount /metrics alongside the API instead of on a second port.
func (c *MetricsCollector) Registry() *prometheus.Registry { return c.registry }

// RecordRunExecution records that a run reached a terminal status after d.
func (c *MetricsCollector) RecordRunExecution(ctx context.Context, status string, d time.Duration) {
	if !c.enabled {
		return
	}
	c.runsStarted.WithLabelValues(status).Inc()
	c.runDuration.WithLabelValues(status).Observe(d.Seconds())
}

// IncrementActiveRuns records a run entering the running state.
func (c *MetricsCollector) IncrementActiveRuns(ctx context.Context) {
	if !c.enabled {
		return
	}
	c.activeRuns.Inc()
}

// DecrementActiveRuns records a run leaving the running state.
func (c *MetricsCollector) DecrementActiveRuns(ctx context.Context) {
	if !c.enabled {
		return
	}
	c.activeRuns.Dec()
}

// RecordDispatch records one dispatch_team or dispatch_worker invocation.
func (c *MetricsCollector) RecordDispatch(ctx context.Context, kind string) {
	if !c.enabled {
		return
	}
	c.dispatches.WithLabelValues(kind).Inc()
}

// RecordEvent records one emitted event by category.
func (c *MetricsCollector) RecordEvent(ctx context.Context, category string) {
	if !c.enabled {
		return
	}
	c.eventsEmitted.WithLabelValues(category).Inc()
}

// RecordSubscriberDropped records an SSE subscriber dropped for backpressure.
func (c *MetricsCollector) RecordSubscriberDropped(ctx context.Context) {
	if !c.enabled {
		return
	}
	c.subscribersDropped.Inc()
}

// Shutdown stops the metrics HTTP server, if one was started.
func (c *MetricsCollector) Shutdown(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

func portAddr(port int) string {
	return ":" + strconv.Itoa(port)
}
