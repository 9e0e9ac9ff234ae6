package bud

import (
	"log/slog"
	"net/http"
	"time"
)

// Option configures a Client.
type Option func(*resolvedOptions)

// resolvedOptions holds all settings after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	cfg        Config
	httpClient *http.Client
	auth       AuthProvider
	logger     *slog.Logger
}

// WithConfig replaces the environment-derived configuration wholesale.
func WithConfig(cfg Config) Option {
	return func(o *resolvedOptions) { o.cfg = cfg }
}

// WithBaseURL overrides the gateway URL (BUD_BASE_URL env var).
func WithBaseURL(url string) Option {
	return func(o *resolvedOptions) { o.cfg.BaseURL = url }
}

// WithAPIKey overrides the API key (BUD_API_KEY env var).
func WithAPIKey(key string) Option {
	return func(o *resolvedOptions) { o.cfg.APIKey = key }
}

// WithTimeout overrides the per-request timeout for non-streaming calls
// (BUD_TIMEOUT env var). Streaming calls are bounded by their context.
func WithTimeout(d time.Duration) Option {
	return func(o *resolvedOptions) { o.cfg.Timeout = d }
}

// WithHTTPClient replaces the default HTTP client. When set, WithTimeout
// has no effect; configure the timeout on the client itself.
func WithHTTPClient(client *http.Client) Option {
	return func(o *resolvedOptions) { o.httpClient = client }
}

// WithAuth installs a custom authentication provider, e.g. PasswordAuth
// for email/password login. Takes precedence over WithAPIKey.
func WithAuth(auth AuthProvider) Option {
	return func(o *resolvedOptions) { o.auth = auth }
}

// WithLogger sets the structured logger for the Client.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}
