// Package observability instruments applications built on the Bud SDK with
// OpenTelemetry tracing and metrics. Configure installs providers once per
// process; until then every entry point is an inert no-op so that
// instrumented code pays a single atomic read when tracing is off.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// defaultTracerName is the instrumentation scope used when no tracer name
// is supplied.
const defaultTracerName = "bud.observability"

type state struct {
	mu     sync.RWMutex
	active atomic.Bool

	configured     bool
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	projectID      string
	logger         *slog.Logger
	shutdown       func(ctx context.Context) error
}

var globalState state

// Configure installs observability according to cfg. It is idempotent: a
// second call logs a warning and leaves the first configuration in place.
// With ModeDisabled the package stays inert and instrumented code keeps its
// no-op fast path.
func Configure(cfg Config) error {
	cfg.applyDefaults()

	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if globalState.configured {
		cfg.Logger.Warn("observability already configured, ignoring repeat call")
		return nil
	}

	globalState.configured = true
	globalState.logger = cfg.Logger
	globalState.projectID = cfg.ProjectID

	if cfg.Mode == ModeDisabled {
		cfg.Logger.Debug("observability disabled by configuration")
		return nil
	}

	tp, mp, shutdown, err := setupProviders(context.Background(), cfg)
	if err != nil {
		globalState.configured = false
		return fmt.Errorf("bud: configure observability: %w", err)
	}

	globalState.tracerProvider = tp
	globalState.meterProvider = mp
	globalState.shutdown = shutdown
	globalState.active.Store(true)

	cfg.Logger.Debug("observability configured",
		slog.String("mode", string(cfg.Mode)),
		slog.String("service", cfg.ServiceName))
	return nil
}

// Shutdown flushes and stops any providers Configure created, then resets
// the package to its unconfigured state. Safe to call when never configured.
func Shutdown(ctx context.Context) error {
	globalState.mu.Lock()
	shutdown := globalState.shutdown
	globalState.active.Store(false)
	globalState.configured = false
	globalState.tracerProvider = nil
	globalState.meterProvider = nil
	globalState.shutdown = nil
	globalState.mu.Unlock()

	if shutdown == nil {
		return nil
	}
	if err := shutdown(ctx); err != nil {
		return fmt.Errorf("bud: shutdown observability: %w", err)
	}
	return nil
}

// IsConfigured reports whether instrumentation is live. This is the no-op
// gate: a single atomic read, safe from any goroutine, false until
// Configure succeeds with a non-disabled mode.
func IsConfigured() bool {
	return globalState.active.Load()
}

// GetTracer returns a tracer from the configured provider, or an inert
// no-op tracer when unconfigured. Never returns nil.
func GetTracer(name string) trace.Tracer {
	if name == "" {
		name = defaultTracerName
	}
	globalState.mu.RLock()
	tp := globalState.tracerProvider
	globalState.mu.RUnlock()
	if tp == nil {
		return tracenoop.NewTracerProvider().Tracer(name)
	}
	return tp.Tracer(name)
}

// GetMeter returns a meter from the configured provider, or an inert no-op
// meter when unconfigured. Never returns nil.
func GetMeter(name string) metric.Meter {
	if name == "" {
		name = defaultTracerName
	}
	globalState.mu.RLock()
	mp := globalState.meterProvider
	globalState.mu.RUnlock()
	if mp == nil {
		return metricnoop.NewMeterProvider().Meter(name)
	}
	return mp.Meter(name)
}

func stateLogger() *slog.Logger {
	globalState.mu.RLock()
	logger := globalState.logger
	globalState.mu.RUnlock()
	if logger == nil {
		return slog.Default()
	}
	return logger
}
