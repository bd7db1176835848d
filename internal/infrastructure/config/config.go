package config

import (
	"fmt"
	"net"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Function store backends
const (
	BackendMemory = "memory"
	BackendDir    = "dir"
	BackendSQLite = "sqlite"
	BackendRemote = "remote"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Sandbox   SandboxConfig
	Functions FunctionsConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	// CORSOrigins is a comma-separated allowlist, empty allows any origin
	CORSOrigins []string `envconfig:"CORS_ORIGINS"`
}

// Address joins host and port for net.Listen
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// SandboxConfig holds execution engine configuration.
type SandboxConfig struct {
	Timeout      time.Duration `envconfig:"SANDBOX_TIMEOUT" default:"5s"`
	PoolSize     int           `envconfig:"SANDBOX_POOL_SIZE" default:"4"`
	MaxCallStack int           `envconfig:"SANDBOX_MAX_CALL_STACK" default:"1024"`
	Console      bool          `envconfig:"SANDBOX_CONSOLE" default:"true"`
}

// FunctionsConfig selects where dynamic function code is looked up.
type FunctionsConfig struct {
	Backend    string `envconfig:"FUNCTIONS_BACKEND" default:"memory"`
	Dir        string `envconfig:"FUNCTIONS_DIR" default:"./functions"`
	Watch      bool   `envconfig:"FUNCTIONS_WATCH" default:"false"`
	SQLitePath string `envconfig:"FUNCTIONS_SQLITE_PATH" default:"functions.db"`
	RemoteURL  string `envconfig:"FUNCTIONS_REMOTE_URL"`
	RemoteRPS  int    `envconfig:"FUNCTIONS_REMOTE_RPS" default:"20"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate checks values envconfig cannot
func (c *Config) Validate() error {
	switch c.Functions.Backend {
	case BackendMemory, BackendDir, BackendSQLite:
	case BackendRemote:
		if c.Functions.RemoteURL == "" {
			return fmt.Errorf("FUNCTIONS_REMOTE_URL is required for the %s backend", BackendRemote)
		}
	default:
		return fmt.Errorf("unknown functions backend %q", c.Functions.Backend)
	}
	if c.Sandbox.PoolSize < 1 {
		return fmt.Errorf("SANDBOX_POOL_SIZE must be positive, got %d", c.Sandbox.PoolSize)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Sandbox: SandboxConfig{
			Timeout:      5 * time.Second,
			PoolSize:     4,
			MaxCallStack: 1024,
			Console:      true,
		},
		Functions: FunctionsConfig{
			Backend:    BackendMemory,
			Dir:        "./functions",
			SQLitePath: "functions.db",
			RemoteRPS:  20,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
