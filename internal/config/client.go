package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientConfig holds configuration for the desktop client.
type ClientConfig struct {
	APIURL        string        `yaml:"api_url"`
	UserID        string        `yaml:"user_id"`
	TriggerSuffix string        `yaml:"trigger_suffix"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Timeout       time.Duration `yaml:"timeout"`
	LogLevel      string        `yaml:"log_level"`
}

// DefaultClientConfig returns the built-in client defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		APIURL:        "http://127.0.0.1:8000",
		TriggerSuffix: "!!e",
		PollInterval:  500 * time.Millisecond,
		Timeout:       60 * time.Second,
		LogLevel:      "info",
	}
}

// DefaultClientConfigPath returns ~/.config/promptboost/client.yaml.
func DefaultClientConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's config directory: %w", err)
	}
	return filepath.Join(dir, "promptboost", "client.yaml"), nil
}

// LoadClient reads the optional YAML file at path, then applies environment
// overrides. A missing file is not an error.
func LoadClient(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read client config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse client config %s: %w", path, err)
			}
		}
	}

	cfg.APIURL = getEnv("PROMPTBOOST_API_URL", cfg.APIURL)
	cfg.UserID = getEnv("PROMPTBOOST_USER_ID", cfg.UserID)
	cfg.LogLevel = getEnv("PROMPTBOOST_LOG_LEVEL", cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the client configuration.
func (c *ClientConfig) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url cannot be empty")
	}
	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		return fmt.Errorf("api_url must start with http:// or https://")
	}
	if c.TriggerSuffix == "" {
		return fmt.Errorf("trigger_suffix cannot be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be > 0")
	}
	return nil
}
