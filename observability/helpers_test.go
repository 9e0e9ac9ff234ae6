package observability

import (
	"log/slog"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setTestProviders installs an in-memory recording tracer provider and
// marks the package configured, restoring the pristine state afterwards.
func setTestProviders(t *testing.T, processors ...sdktrace.SpanProcessor) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	opts := []sdktrace.TracerProviderOption{sdktrace.WithSpanProcessor(sr)}
	for _, p := range processors {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}
	tp := sdktrace.NewTracerProvider(opts...)

	globalState.mu.Lock()
	globalState.configured = true
	globalState.tracerProvider = tp
	globalState.logger = slog.Default()
	globalState.mu.Unlock()
	globalState.active.Store(true)

	t.Cleanup(func() {
		resetState()
		_ = tp.Shutdown(t.Context())
	})
	return sr
}

func resetState() {
	globalState.mu.Lock()
	globalState.active.Store(false)
	globalState.configured = false
	globalState.tracerProvider = nil
	globalState.meterProvider = nil
	globalState.shutdown = nil
	globalState.logger = nil
	globalState.projectID = ""
	globalState.mu.Unlock()
}
