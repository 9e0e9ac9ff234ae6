package bud

import (
	"os"
	"time"
)

// Version is the SDK version reported in request headers and telemetry
// resource attributes.
const Version = "0.3.0"

// Config holds the settings needed to construct a Client. All fields can
// also be supplied through functional options; options win over Config,
// and Config wins over environment variables.
type Config struct {
	// BaseURL is the root URL of the Bud gateway (e.g. "https://api.bud.eco").
	BaseURL string

	// APIKey authenticates requests with a static bearer key. Ignored when
	// an explicit AuthProvider is installed via WithAuth.
	APIKey string

	// Timeout applies to individual non-streaming API requests.
	// Defaults to 60 seconds.
	Timeout time.Duration
}

// ConfigFromEnv reads configuration from BUD_* environment variables.
func ConfigFromEnv() Config {
	return Config{
		BaseURL: envStr("BUD_BASE_URL", ""),
		APIKey:  envStr("BUD_API_KEY", ""),
		Timeout: envDuration("BUD_TIMEOUT", 60*time.Second),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
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
