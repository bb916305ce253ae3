package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name        string
		cfg         LogConfig
		expectError bool
	}{
		{
			name: "default config",
			cfg:  DefaultLogConfig(),
		},
		{
			name: "json format to stdout",
			cfg:  LogConfig{Level: "debug", Format: "json", Output: "stdout"},
		},
		{
			name: "console format",
			cfg:  LogConfig{Level: "warn", Format: "console"},
		},
		{
			name:        "invalid level",
			cfg:         LogConfig{Level: "verbose"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
			logger.Info("test message", String("key", "value"))
		})
	}
}

func TestLogger_With(t *testing.T) {
	logger := NopLogger()
	child := logger.With(String("component", "forwarder"))
	assert.NotNil(t, child)
	child.Info("message")
}

func TestLogger_WithContext(t *testing.T) {
	logger := NopLogger()

	ctx := context.Background()
	assert.Equal(t, logger, logger.WithContext(ctx))

	ctx = ContextWithRequestID(ctx, "req-123")
	assert.NotEqual(t, logger, logger.WithContext(ctx))
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = ContextWithRequestID(ctx, "abc")
	assert.Equal(t, "abc", RequestIDFromContext(ctx))
}

func TestGlobalLogger(t *testing.T) {
	original := GetGlobalLogger()
	defer SetGlobalLogger(original)

	logger := NopLogger()
	SetGlobalLogger(logger)
	assert.Equal(t, logger, GetGlobalLogger())
	assert.Equal(t, logger, L())
}

func TestGetGlobalLogger_Default(t *testing.T) {
	original := GetGlobalLogger()
	defer SetGlobalLogger(original)

	SetGlobalLogger(nil)
	assert.NotNil(t, GetGlobalLogger())
}
