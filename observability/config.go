package observability

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Mode selects how Configure obtains tracer and meter providers.
type Mode string

const (
	// ModeAuto attaches to an existing OpenTelemetry SDK setup when one is
	// installed, otherwise creates a new one.
	ModeAuto Mode = "auto"
	// ModeCreate always builds new providers and installs them globally.
	ModeCreate Mode = "create"
	// ModeAttach adds span processing to the application's existing SDK
	// tracer provider, falling back to create when there isn't one.
	ModeAttach Mode = "attach"
	// ModeDisabled turns instrumentation off entirely.
	ModeDisabled Mode = "disabled"
)

// Config controls observability setup.
type Config struct {
	// Mode selects the provider strategy. Defaults to auto.
	Mode Mode
	// Endpoint is the OTLP/HTTP collector base URL, e.g.
	// "https://gateway.bud.example/observability". Required unless
	// attaching or disabled.
	Endpoint string
	// APIKey authenticates exports to the gateway collector.
	APIKey string
	// ServiceName identifies the instrumented service. Defaults to
	// "bud-sdk".
	ServiceName string
	// ProjectID tags spans and baggage with the owning project.
	ProjectID string
	// BatchTimeout is the span batcher flush interval. Defaults to 5s.
	BatchTimeout time.Duration
	// MetricInterval is the periodic metric export interval. Defaults
	// to 15s.
	MetricInterval time.Duration
	// Insecure permits plain-HTTP export endpoints.
	Insecure bool
	// Logger receives instrumentation diagnostics. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// ConfigFromEnv builds a Config from BUD_OTEL_* variables, falling back to
// the conventional OTEL_* names where they exist.
func ConfigFromEnv() Config {
	return Config{
		Mode:           Mode(envStr("BUD_OTEL_MODE", string(ModeAuto))),
		Endpoint:       envStr("BUD_OTEL_ENDPOINT", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		APIKey:         envStr("BUD_OTEL_API_KEY", os.Getenv("BUD_API_KEY")),
		ServiceName:    envStr("BUD_OTEL_SERVICE_NAME", os.Getenv("OTEL_SERVICE_NAME")),
		ProjectID:      os.Getenv("BUD_PROJECT_ID"),
		BatchTimeout:   envDuration("BUD_OTEL_BATCH_TIMEOUT", 0),
		MetricInterval: envDuration("BUD_OTEL_METRIC_INTERVAL", 0),
		Insecure:       envBool("BUD_OTEL_INSECURE", false),
	}
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeAuto
	}
	if c.ServiceName == "" {
		c.ServiceName = "bud-sdk"
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 5 * time.Second
	}
	if c.MetricInterval <= 0 {
		c.MetricInterval = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
