package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer so callers depend on one small
// interface (StartSpan) rather than the full otel API, mirroring the
// teacher's obs.Tracer.StartSpan usage in task_execution_service.go.
type Tracer struct {
	enabled bool
	tracer  trace.Tracer
	tp      *sdktrace.TracerProvider
}

// NewTracer builds a Tracer from config. When disabled, StartSpan returns ctx
// unchanged and a no-op span, so call sites never need to branch on whether
// tracing is on.
func NewTracer(ctx context.Context, config TracingConfig) (*Tracer, error) {
	if !config.Enabled {
		return &Tracer{enabled: false}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(orDefault(config.ServiceName, "aiops-executor")),
			semconv.ServiceVersion(orDefault(config.ServiceVersion, "dev")),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(config.OTLPEndpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, err
	}

	sampler := sdktrace.TraceIDRatioBased(config.SampleRate)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)

	return &Tracer{enabled: true, tracer: tp.Tracer("aiops-executor"), tp: tp}, nil
}

// StartSpan starts a span named name, returning the derived context and the
// span. Callers must call span.End() (e.g. via defer).
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil || !t.enabled {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Shutdown flushes and stops the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.tp == nil {
		return nil
	}
	return t.tp.Shutdown(ctx)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
