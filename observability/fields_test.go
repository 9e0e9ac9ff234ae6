package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldCaptureResolve(t *testing.T) {
	defaults := []string{"model", "usage"}

	tests := []struct {
		name    string
		fc      FieldCapture
		allowed []string
		denied  []string
	}{
		{
			name:    "zero value uses safe defaults",
			fc:      FieldCapture{},
			allowed: []string{"model", "usage"},
			denied:  []string{"messages", "content"},
		},
		{
			name:    "capture all",
			fc:      CaptureAll(),
			allowed: []string{"model", "usage", "messages", "content", "anything"},
		},
		{
			name:   "capture none",
			fc:     CaptureNone(),
			denied: []string{"model", "usage", "messages"},
		},
		{
			name:    "explicit subset",
			fc:      CaptureFields("messages"),
			allowed: []string{"messages"},
			denied:  []string{"model", "usage"},
		},
		{
			name:   "empty subset captures nothing",
			fc:     CaptureFields(),
			denied: []string{"model", "usage"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := tt.fc.resolve(defaults)
			for _, f := range tt.allowed {
				assert.True(t, fs.allows(f), "expected %q to be allowed", f)
			}
			for _, f := range tt.denied {
				assert.False(t, fs.allows(f), "expected %q to be denied", f)
			}
		})
	}
}

func TestFieldSetEmpty(t *testing.T) {
	assert.True(t, CaptureNone().resolve(nil).empty())
	assert.False(t, CaptureAll().resolve(nil).empty())
	assert.False(t, CaptureFields("x").resolve(nil).empty())
	assert.False(t, FieldCapture{}.resolve([]string{"model"}).empty())
}
