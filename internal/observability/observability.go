package observability

import "context"

// Observability bundles the metrics collector and tracer behind one handle
// passed down through constructors, the same shape the teacher wires as
// obs.Tracer / obs.Metrics into its services.
type Observability struct {
	Metrics *MetricsCollector
	Tracer  *Tracer
}

// New builds an Observability from config. Failures to start tracing are
// fatal (misconfigured exporter endpoint is an operator error worth
// surfacing at boot); a disabled metrics/tracing config never errors.
func New(ctx context.Context, config Config) (*Observability, error) {
	metrics, err := NewMetricsCollector(config.Metrics)
	if err != nil {
		return nil, err
	}
	tracer, err := NewTracer(ctx, config.Tracing)
	if err != nil {
		return nil, err
	}
	return &Observability{Metrics: metrics, Tracer: tracer}, nil
}

// Shutdown releases the metrics server and flushes the tracer.
func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil {
		return nil
	}
	if err := o.Metrics.Shutdown(ctx); err != nil {
		return err
	}
	return o.Tracer.Shutdown(ctx)
}
