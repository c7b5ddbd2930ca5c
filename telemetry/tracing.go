package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig configures the OTLP/gRPC span exporter.
type TracingConfig struct {
	CollectorAddr string
	ServiceName   string
	SampleRatio   float64
}

// ConfigureTracing installs a global TracerProvider exporting spans over
// OTLP/gRPC to cfg.CollectorAddr. The returned shutdown func must be
// called on process exit to flush buffered spans.
func ConfigureTracing(ctx context.Context, cfg TracingConfig) (shutdown func(context.Context) error, err error) {
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.CollectorAddr), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, err
	}
	ratio := cfg.SampleRatio
	if ratio <= 0 {
		ratio = 1
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the named tracer from the global TracerProvider; safe to
// call before ConfigureTracing, which yields a no-op tracer.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartSpan is a convenience wrapper that brackets a request with a span
// and a fixed start time for duration metrics.
func StartSpan(ctx context.Context, tracerName, spanName string) (context.Context, trace.Span, time.Time) {
	ctx, span := Tracer(tracerName).Start(ctx, spanName)
	return ctx, span, time.Now()
}
