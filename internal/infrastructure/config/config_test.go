package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, 5*time.Second, cfg.Sandbox.Timeout)
	assert.Equal(t, 4, cfg.Sandbox.PoolSize)
	assert.Equal(t, 1024, cfg.Sandbox.MaxCallStack)
	assert.True(t, cfg.Sandbox.Console)

	assert.Equal(t, BackendMemory, cfg.Functions.Backend)
	assert.False(t, cfg.Functions.Watch)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	assert.NoError(t, cfg.Validate())
}

func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                   "9000",
		"HOST":                   "127.0.0.1",
		"CORS_ORIGINS":           "https://a.example.com,https://b.example.com",
		"SANDBOX_TIMEOUT":        "250ms",
		"SANDBOX_POOL_SIZE":      "8",
		"SANDBOX_MAX_CALL_STACK": "256",
		"SANDBOX_CONSOLE":        "false",
		"FUNCTIONS_BACKEND":      "sqlite",
		"FUNCTIONS_SQLITE_PATH":  "/tmp/fn.db",
		"LOG_LEVEL":              "debug",
		"LOG_DEV":                "true",
		"RATE_LIMIT_RPS":         "500",
		"RATE_LIMIT_BURST":       "1000",
		"RATE_LIMIT_ENABLED":     "false",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSOrigins)

	assert.Equal(t, 250*time.Millisecond, cfg.Sandbox.Timeout)
	assert.Equal(t, 8, cfg.Sandbox.PoolSize)
	assert.Equal(t, 256, cfg.Sandbox.MaxCallStack)
	assert.False(t, cfg.Sandbox.Console)

	assert.Equal(t, BackendSQLite, cfg.Functions.Backend)
	assert.Equal(t, "/tmp/fn.db", cfg.Functions.SQLitePath)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)

	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadWithPartialEnvironmentVariables(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 5*time.Second, cfg.Sandbox.Timeout)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad duration", map[string]string{"SANDBOX_TIMEOUT": "soon"}},
		{"unknown backend", map[string]string{"FUNCTIONS_BACKEND": "s3"}},
		{"remote without url", map[string]string{"FUNCTIONS_BACKEND": "remote"}},
		{"empty pool", map[string]string{"SANDBOX_POOL_SIZE": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			_, err := Load()
			assert.Error(t, err)
			assert.Equal(t, Default(), LoadOrDefault())
		})
	}
}

func TestRemoteBackend(t *testing.T) {
	t.Setenv("FUNCTIONS_BACKEND", "remote")
	t.Setenv("FUNCTIONS_REMOTE_URL", "http://functions.internal")
	t.Setenv("FUNCTIONS_REMOTE_RPS", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendRemote, cfg.Functions.Backend)
	assert.Equal(t, "http://functions.internal", cfg.Functions.RemoteURL)
	assert.Equal(t, 5, cfg.Functions.RemoteRPS)
}

func TestServerAddress(t *testing.T) {
	assert.Equal(t, "0.0.0.0:8000", Default().Server.Address())
	assert.Equal(t, "[::1]:9000", ServerConfig{Host: "::1", Port: "9000"}.Address())
}
