package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestDetectMode(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	assert.Equal(t, ModeCreate, detectMode(Config{Mode: ModeCreate}))
	assert.Equal(t, ModeAttach, detectMode(Config{Mode: ModeAttach}))
	assert.Equal(t, ModeDisabled, detectMode(Config{Mode: ModeDisabled}))

	// Auto resolves by whether an SDK provider is already installed.
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })
	otel.SetTracerProvider(tp)
	assert.Equal(t, ModeAttach, detectMode(Config{Mode: ModeAuto}))
}

func TestAttachFallsBackToCreateWithoutEndpoint(t *testing.T) {
	cfg := Config{Mode: ModeAttach}
	cfg.applyDefaults()

	// No SDK provider installed and no endpoint for the create fallback.
	_, _, _, err := attachProviders(t.Context(), cfg)
	assert.Error(t, err)
}
