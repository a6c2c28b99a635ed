// Package otelx configures the global OpenTelemetry tracer provider and
// holds the span attributes shared by the bundle build and serve paths.
package otelx

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

// tracer names are "linnemanlabs/<pkg>"
const tracerPrefix = "linnemanlabs/"

type Options struct {
	Enabled   bool
	Endpoint  string
	Insecure  bool
	Sample    float64 // clamped to [0,1]
	Service   string
	Component string
	Version   string
}

func (o Options) sampleRatio() float64 {
	switch {
	case o.Sample < 0:
		return 0
	case o.Sample > 1:
		return 1
	}
	return o.Sample
}

func Init(ctx context.Context, o Options) (func(context.Context) error, error) {
	if !o.Enabled {
		setGlobals(sdktrace.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(o.Endpoint),
		otlptracegrpc.WithDialOption(grpc.WithUserAgent(userAgent(o))),
	}
	if o.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	// exporter creation blocks without a deadline, the collector is local
	dialCtx, dialCancel := context.WithTimeout(ctx, 3*time.Second)
	defer dialCancel()
	exp, err := otlptracegrpc.New(dialCtx, opts...)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(
			sdktrace.TraceIDRatioBased(o.sampleRatio()),
		)),
		sdktrace.WithBatcher(exp,
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(newResource(ctx, o)),
	)
	setGlobals(tp)

	return tp.Shutdown, nil
}

func userAgent(o Options) string {
	ua := o.Service
	if o.Version != "" {
		ua += "/" + o.Version
	}
	return ua
}

func newResource(ctx context.Context, o Options) *resource.Resource {
	name := o.Service
	if o.Component != "" {
		name += "." + o.Component
	}
	// partial resources are still usable, detector errors are ignored
	res, _ := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
			semconv.ServiceVersionKey.String(o.Version),
		),
	)
	return res
}

func setGlobals(tp trace.TracerProvider) {
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
}

// Tracer returns the package tracer from the global provider.
func Tracer(pkg string) trace.Tracer {
	return otel.Tracer(tracerPrefix + pkg)
}

// BundleAttrs identifies one bundle variant on a span.
func BundleAttrs(name, version, varyKey string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("bundle.name", name),
		attribute.String("bundle.version", version),
	}
	if varyKey != "" {
		attrs = append(attrs, attribute.String("bundle.vary_key", varyKey))
	}
	return attrs
}

// AnnotateBundle adds BundleAttrs and the cache outcome to the span in ctx,
// if one is recording.
func AnnotateBundle(ctx context.Context, name, version, varyKey, outcome string) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(BundleAttrs(name, version, varyKey)...)
	if outcome != "" {
		span.SetAttributes(attribute.String("bundle.cache", outcome))
	}
}
