// Package otelhelper wires OpenTelemetry tracing for rule and workflow executions.
package otelhelper

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const TracerName = "github.com/dukex/operion-automation"

const (
	EventIDKey      = "operion.event.id"
	EventTypeKey    = "operion.event.type"
	EventSourceKey  = "operion.event.source"
	TaskIDKey       = "operion.task.id"
	RuleIDKey       = "operion.rule.id"
	RuleNameKey     = "operion.rule.name"
	WorkflowIDKey   = "operion.workflow.id"
	WorkflowNameKey = "operion.workflow.name"
	ExecutionIDKey  = "operion.execution.id"
	StepIDKey       = "operion.step.id"
	ActionTypeKey   = "operion.action.type"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// Options configure the tracer provider installed by Setup.
type Options struct {
	ServiceName    string
	ServiceVersion string
	// SampleRatio is the fraction of root spans kept. Values outside (0, 1) keep every span.
	SampleRatio float64
}

// Setup installs a global OTLP/HTTP tracer provider. The exporter endpoint comes from
// the standard OTEL_EXPORTER_OTLP_* environment variables.
func Setup(ctx context.Context, opts Options) (ShutdownFunc, error) {
	r, err := resource.Merge(resource.Default(), serviceResource(opts))
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sampler(opts.SampleRatio)),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return provider.Shutdown, nil
}

func serviceResource(opts Options) *resource.Resource {
	attrs := []attribute.KeyValue{semconv.ServiceName(opts.ServiceName)}
	if opts.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(opts.ServiceVersion))
	}

	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

// nolint:ireturn
func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}

	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Tracer returns the package tracer from the global provider, a no-op until Setup runs.
// nolint:ireturn // OpenTelemetry tracers are interfaces
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// nolint:ireturn,spancheck
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
