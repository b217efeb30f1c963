// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/promptboost/internal/domain"
)

// Config holds all server configuration.
type Config struct {
	Port        string
	FrontendURL string
	LogLevel    string

	DBPath      string
	DatabaseURL string // postgres://... selects the PostgreSQL store

	Generation         ProviderConfig
	FallbackGeneration ProviderConfig
	GenerationRPS      float64
	GenerationRetries  int

	QualityAddr    string
	RequestTimeout time.Duration
}

// ProviderConfig describes one OpenAI-compatible chat completions endpoint.
type ProviderConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
}

// Enabled reports whether the provider has credentials.
func (p ProviderConfig) Enabled() bool {
	return p.APIKey != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8000"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DBPath:      getEnv("DB_PATH", "./data/promptboost.db"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Generation: ProviderConfig{
			APIKey:      getEnv("GENERATION_API_KEY", ""),
			BaseURL:     getEnv("GENERATION_BASE_URL", "https://api.groq.com/openai/v1"),
			Model:       getEnv("GENERATION_MODEL", "llama-3.3-70b-versatile"),
			Temperature: getEnvFloat("GENERATION_TEMPERATURE", 0.7),
		},
		FallbackGeneration: ProviderConfig{
			APIKey:      getEnv("FALLBACK_GENERATION_API_KEY", ""),
			BaseURL:     getEnv("FALLBACK_GENERATION_BASE_URL", ""),
			Model:       getEnv("FALLBACK_GENERATION_MODEL", ""),
			Temperature: getEnvFloat("FALLBACK_GENERATION_TEMPERATURE", 0.7),
		},
		GenerationRPS:     getEnvFloat("GENERATION_RPS", 5),
		GenerationRetries: getEnvInt("GENERATION_MAX_RETRIES", 2),
		QualityAddr:       getEnv("QUALITY_ADDR", ""),
		RequestTimeout:    getEnvDuration("REQUEST_TIMEOUT", 45*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" && c.DatabaseURL == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if !c.Generation.Enabled() {
		return fmt.Errorf("%w: GENERATION_API_KEY is required", domain.ErrConfiguration)
	}
	if c.FallbackGeneration.Enabled() && c.FallbackGeneration.Model == "" {
		return fmt.Errorf("%w: FALLBACK_GENERATION_MODEL is required with FALLBACK_GENERATION_API_KEY", domain.ErrConfiguration)
	}
	if c.GenerationRetries < 0 {
		return fmt.Errorf("GENERATION_MAX_RETRIES must be >= 0")
	}
	if c.GenerationRPS <= 0 {
		return fmt.Errorf("GENERATION_RPS must be > 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be > 0")
	}
	return nil
}

// UsePostgres reports whether DATABASE_URL points at PostgreSQL.
func (c *Config) UsePostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") ||
		strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// ParseLogLevel maps a LOG_LEVEL value to a slog level. Unknown values mean info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
