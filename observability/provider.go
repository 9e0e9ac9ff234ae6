package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// setupProviders resolves the configured mode and returns the tracer and
// meter providers instrumentation will use, plus a shutdown for whatever
// this package owns.
func setupProviders(ctx context.Context, cfg Config) (trace.TracerProvider, metric.MeterProvider, func(context.Context) error, error) {
	switch detectMode(cfg) {
	case ModeAttach:
		return attachProviders(ctx, cfg)
	default:
		return createProviders(ctx, cfg)
	}
}

// detectMode maps ModeAuto onto attach or create depending on whether the
// application already installed an SDK tracer provider globally.
func detectMode(cfg Config) Mode {
	if cfg.Mode != ModeAuto {
		return cfg.Mode
	}
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
		return ModeAttach
	}
	return ModeCreate
}

// createProviders builds a full SDK setup owned by this package: resource,
// batched OTLP trace export, periodic OTLP metric export, the baggage span
// processor, and the W3C composite propagator. The providers are installed
// globally so that other instrumentation in the process participates.
func createProviders(ctx context.Context, cfg Config) (trace.TracerProvider, metric.MeterProvider, func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return nil, nil, nil, fmt.Errorf("endpoint is required in create mode")
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
		attribute.String("bud.sdk.version", sdkVersion),
		attribute.String("bud.sdk.language", "go"),
	}
	if cfg.ProjectID != "" {
		attrs = append(attrs, attribute.String("bud.project_id", cfg.ProjectID))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create resource: %w", err)
	}

	traceExp, err := newTraceExporter(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(newBaggageSpanProcessor()),
		sdktrace.WithBatcher(traceExp,
			sdktrace.WithBatchTimeout(cfg.BatchTimeout),
		),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	setupPropagator()

	metricExp, err := newMetricExporter(ctx, cfg)
	if err != nil {
		shutdownErr := tp.Shutdown(ctx)
		if shutdownErr != nil {
			cfg.Logger.Warn("tracer provider shutdown after metric exporter failure", "error", shutdownErr)
		}
		return nil, nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExp,
				sdkmetric.WithInterval(cfg.MetricInterval),
			),
		),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	shutdown := func(ctx context.Context) error {
		var firstErr error
		if err := tp.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := mp.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	}
	return tp, mp, shutdown, nil
}

// attachProviders reuses the application's SDK tracer provider, registering
// the baggage processor on it. Spans export through whatever pipeline the
// application configured; this package owns nothing to shut down. When the
// global provider is not an SDK provider, attach falls back to create.
func attachProviders(ctx context.Context, cfg Config) (trace.TracerProvider, metric.MeterProvider, func(context.Context) error, error) {
	tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	if !ok {
		cfg.Logger.Debug("no SDK tracer provider to attach to, creating one")
		return createProviders(ctx, cfg)
	}
	tp.RegisterSpanProcessor(newBaggageSpanProcessor())
	setupPropagator()
	noShutdown := func(context.Context) error { return nil }
	return tp, otel.GetMeterProvider(), noShutdown, nil
}

// setupPropagator installs the W3C trace-context + baggage composite
// propagator so bud.* baggage crosses process boundaries.
func setupPropagator() {
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)
}
