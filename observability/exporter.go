package observability

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// sdkVersion is stamped on exports and resource attributes. Kept in sync
// with the root package version.
const sdkVersion = "0.3.0"

func exportHeaders(cfg Config) map[string]string {
	headers := map[string]string{
		"X-Bud-SDK-Version": sdkVersion,
	}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}
	return headers
}

// newTraceExporter builds the OTLP/HTTP trace exporter against the gateway
// collector at <endpoint>/v1/traces.
func newTraceExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpointURL(strings.TrimRight(cfg.Endpoint, "/") + "/v1/traces"),
		otlptracehttp.WithHeaders(exportHeaders(cfg)),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	return exp, nil
}

// newMetricExporter builds the OTLP/HTTP metric exporter against
// <endpoint>/v1/metrics.
func newMetricExporter(ctx context.Context, cfg Config) (sdkmetric.Exporter, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpointURL(strings.TrimRight(cfg.Endpoint, "/") + "/v1/metrics"),
		otlpmetrichttp.WithHeaders(exportHeaders(cfg)),
		otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exp, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	return exp, nil
}
