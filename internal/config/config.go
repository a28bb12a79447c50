// Package config handles ListenList messaging configuration loading
// and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	// API settings for the REST backend.
	API APIConfig `yaml:"api" mapstructure:"api"`

	// Push settings for the live update channel.
	Push PushConfig `yaml:"push" mapstructure:"push"`

	// Auth settings for credential storage.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Database settings for the local thread snapshot.
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings.
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// APIConfig contains REST backend settings.
type APIConfig struct {
	// BaseURL is the server root, e.g. https://listenlist.app.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Timeout bounds each REST request.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// PushConfig contains live-channel settings.
type PushConfig struct {
	// URL is the push endpoint. When empty it is derived from
	// api.base_url by swapping the scheme to ws(s).
	URL string `yaml:"url" mapstructure:"url"`

	// Backoff is the wait before reconnecting a dropped connection.
	Backoff time.Duration `yaml:"backoff" mapstructure:"backoff"`

	// AuthBackoff is the wait after a failed token refresh.
	AuthBackoff time.Duration `yaml:"auth_backoff" mapstructure:"auth_backoff"`
}

// AuthConfig contains credential storage settings.
type AuthConfig struct {
	// CredentialPath is where the token pair is stored on disk.
	CredentialPath string `yaml:"credential_path" mapstructure:"credential_path"`
}

// DatabaseConfig contains local snapshot database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".local", "share", "llmsg")

	return &Config{
		API: APIConfig{
			BaseURL: "https://listenlist.app",
			Timeout: 15 * time.Second,
		},
		Push: PushConfig{
			Backoff:     3 * time.Second,
			AuthBackoff: 5 * time.Second,
		},
		Auth: AuthConfig{
			CredentialPath: filepath.Join(dataDir, "credentials.json"),
		},
		Database: DatabaseConfig{
			Path: filepath.Join(dataDir, "llmsg.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// PushURL returns the configured push endpoint, deriving it from the
// API base URL when unset.
func (c *Config) PushURL() string {
	if c.Push.URL != "" {
		return c.Push.URL
	}
	url := c.API.BaseURL
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return strings.TrimRight(url, "/") + "/ws/mensajes/"
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("api.base_url must start with http:// or https://")
	}
	if c.Push.URL != "" && !strings.HasPrefix(c.Push.URL, "ws://") && !strings.HasPrefix(c.Push.URL, "wss://") {
		return fmt.Errorf("push.url must start with ws:// or wss://")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.Push.Backoff <= 0 || c.Push.AuthBackoff <= 0 {
		return fmt.Errorf("push backoffs must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console")
	}
	return nil
}
