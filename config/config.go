package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds the process configuration shared by the trn commands and the API server
type Config struct {
	// Run registry. An empty DatabaseURL selects the JSONL manifest.
	DatabaseURL    string
	DatabaseDriver string
	ManifestPath   string

	// Server
	ServerPort string

	// Run outputs
	LogDir       string
	EventLogPath string

	// Telemetry
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	LogLevel string
}

// Load loads configuration from environment variables and validates all of it
func Load() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRunner loads configuration for a single training run. Registry and
// server settings are not consumed by the runner and are left unchecked.
func LoadRunner() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateLogging(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read() (*Config, error) {
	insecure, err := envBool("OTEL_EXPORTER_OTLP_INSECURE", false)
	if err != nil {
		return nil, err
	}
	return &Config{
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DatabaseDriver: getEnv("DATABASE_DRIVER", "postgres"),
		ManifestPath:   getEnv("TRN_MANIFEST", "runs/manifest.jsonl"),
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		LogDir:         getEnv("TRN_LOG_DIR", "logs"),
		EventLogPath:   getEnv("TRN_EVENT_LOG", ""),
		OTELEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:   insecure,
		ServiceName:    getEnv("OTEL_SERVICE_NAME", "trn"),
		LogLevel:       getEnv("TRN_LOG_LEVEL", "info"),
	}, nil
}

// Validate checks value ranges and enumerations
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver)
	}
	port, err := strconv.Atoi(c.ServerPort)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("config: SERVER_PORT=%q is not a valid port", c.ServerPort)
	}
	if c.DatabaseURL == "" && c.ManifestPath == "" {
		return fmt.Errorf("config: TRN_MANIFEST is required when DATABASE_URL is unset")
	}
	return c.validateLogging()
}

func (c *Config) validateLogging() error {
	_, err := ParseLevel(c.LogLevel)
	return err
}

// SlogLevel returns the configured log level
func (c *Config) SlogLevel() slog.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

// ParseLevel maps debug, info, warn and error onto slog levels
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("config: TRN_LOG_LEVEL=%q is not a valid level", s)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envBool(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}
