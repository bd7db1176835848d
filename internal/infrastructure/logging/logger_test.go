package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		level   zapcore.Level
		wantErr bool
	}{
		{"production", DefaultConfig(), zapcore.InfoLevel, false},
		{"development", DevelopmentConfig(), zapcore.DebugLevel, false},
		{"warn without outputs", Config{Level: "warn"}, zapcore.WarnLevel, false},
		{"unknown level", Config{Level: "chatty"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.level))
			assert.False(t, logger.Core().Enabled(tt.level-1))
		})
	}
}

func TestFromLevelFallsBack(t *testing.T) {
	logger := FromLevel("chatty", false)
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))

	dev := FromLevel("", true)
	assert.True(t, dev.Core().Enabled(zapcore.DebugLevel))
}

func TestComponent(t *testing.T) {
	logger := NewDefault()
	assert.NotNil(t, logger.Component("sandbox"))
}
