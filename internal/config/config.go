// Package config provides configuration management for the activity API.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teams-notifier/activity-api/pkg/duration"
)

// Duration is an alias for the shared duration.Duration type.
type Duration = duration.Duration

// Config represents the complete service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Teams    TeamsConfig    `yaml:"teams"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address      string   `yaml:"address"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// TeamsConfig contains the bot registration and its credentials.
// Exactly one credential kind must be configured: app_password, or
// app_certificate together with app_private_key (both base64-encoded PEM).
type TeamsConfig struct {
	AppID          string `yaml:"app_id"`
	TenantID       string `yaml:"tenant_id"`
	AppPassword    string `yaml:"app_password"`
	AppCertificate string `yaml:"app_certificate"`
	AppPrivateKey  string `yaml:"app_private_key"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      "0.0.0.0:3980",
			ReadTimeout:  Duration(30 * time.Second),
			WriteTimeout: Duration(30 * time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load loads configuration from an optional file, applies environment
// variable overrides, and validates the result. An empty path skips the file
// and configures from environment alone.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables
		data = []byte(os.ExpandEnv(string(data)))

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. The variable
// names match the ones the deployment scaffolding has always used.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Address = fmt.Sprintf("0.0.0.0:%d", port)
		}
	}
	if v := os.Getenv("MICROSOFT_APP_ID"); v != "" {
		c.Teams.AppID = v
	}
	if v := os.Getenv("MICROSOFT_APP_TENANT_ID"); v != "" {
		c.Teams.TenantID = v
	}
	if v := os.Getenv("MICROSOFT_APP_PASSWORD"); v != "" {
		c.Teams.AppPassword = v
	}
	if v := os.Getenv("MICROSOFT_APP_CERTIFICATE"); v != "" {
		c.Teams.AppCertificate = v
	}
	if v := os.Getenv("MICROSOFT_APP_PRIVATEKEY"); v != "" {
		c.Teams.AppPrivateKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("ACTIVITY_API_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Teams.AppID == "" {
		return fmt.Errorf("teams.app_id is required")
	}

	hasSecret := c.Teams.AppPassword != ""
	hasCert := c.Teams.AppCertificate != "" || c.Teams.AppPrivateKey != ""
	if !hasSecret && !hasCert {
		return fmt.Errorf("missing either teams.app_password or teams.app_certificate and teams.app_private_key")
	}
	if hasSecret && hasCert {
		return fmt.Errorf("teams.app_password and certificate credentials are mutually exclusive")
	}
	if hasCert && (c.Teams.AppCertificate == "" || c.Teams.AppPrivateKey == "") {
		return fmt.Errorf("certificate credentials require both teams.app_certificate and teams.app_private_key")
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	return nil
}

// DecodeCertificate returns the PEM certificate decoded from its base64 form.
func (t TeamsConfig) DecodeCertificate() ([]byte, error) {
	pem, err := base64.StdEncoding.DecodeString(t.AppCertificate)
	if err != nil {
		return nil, fmt.Errorf("decode teams.app_certificate: %w", err)
	}
	return pem, nil
}

// DecodePrivateKey returns the PEM private key decoded from its base64 form.
func (t TeamsConfig) DecodePrivateKey() ([]byte, error) {
	pem, err := base64.StdEncoding.DecodeString(t.AppPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decode teams.app_private_key: %w", err)
	}
	return pem, nil
}
