package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  address: "127.0.0.1:8080"
  read_timeout: 10s
teams:
  app_id: app-1
  app_password: s3cret
database:
  dsn: postgres://localhost/notiteams
  max_open_conns: 20
logging:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Address != "127.0.0.1:8080" {
		t.Errorf("unexpected address: %s", cfg.Server.Address)
	}
	if cfg.Server.ReadTimeout.Duration() != 10*time.Second {
		t.Errorf("unexpected read timeout: %v", cfg.Server.ReadTimeout)
	}
	// Defaults survive partial files.
	if cfg.Server.WriteTimeout.Duration() != 30*time.Second {
		t.Errorf("expected default write timeout, got %v", cfg.Server.WriteTimeout)
	}
	if cfg.Database.MaxOpenConns != 20 {
		t.Errorf("unexpected max open conns: %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("unexpected log level: %s", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("expected default metrics config, got %+v", cfg.Metrics)
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("PORT", "4000")
	t.Setenv("MICROSOFT_APP_ID", "app-env")
	t.Setenv("MICROSOFT_APP_PASSWORD", "env-secret")
	t.Setenv("DATABASE_URL", "postgres://db/notiteams")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Address != "0.0.0.0:4000" {
		t.Errorf("unexpected address: %s", cfg.Server.Address)
	}
	if cfg.Teams.AppID != "app-env" || cfg.Teams.AppPassword != "env-secret" {
		t.Errorf("env overrides not applied: %+v", cfg.Teams)
	}
	if cfg.Database.DSN != "postgres://db/notiteams" {
		t.Errorf("unexpected dsn: %s", cfg.Database.DSN)
	}
}

func TestLoad_ExpandsEnvInFile(t *testing.T) {
	t.Setenv("TEST_DB_DSN", "postgres://expanded/db")
	path := writeConfig(t, `
teams:
  app_id: app-1
  app_password: p
database:
  dsn: ${TEST_DB_DSN}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Database.DSN != "postgres://expanded/db" {
		t.Errorf("env expansion failed: %s", cfg.Database.DSN)
	}
}

func TestValidate_CredentialKinds(t *testing.T) {
	base := func() *Config {
		cfg := DefaultConfig()
		cfg.Teams.AppID = "app-1"
		cfg.Database.DSN = "postgres://x"
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"secret", func(c *Config) { c.Teams.AppPassword = "p" }, true},
		{"certificate", func(c *Config) {
			c.Teams.AppCertificate = "Y2VydA=="
			c.Teams.AppPrivateKey = "a2V5"
		}, true},
		{"none", func(c *Config) {}, false},
		{"both", func(c *Config) {
			c.Teams.AppPassword = "p"
			c.Teams.AppCertificate = "Y2VydA=="
			c.Teams.AppPrivateKey = "a2V5"
		}, false},
		{"certificate without key", func(c *Config) { c.Teams.AppCertificate = "Y2VydA==" }, false},
		{"missing app id", func(c *Config) { c.Teams.AppID = ""; c.Teams.AppPassword = "p" }, false},
		{"missing dsn", func(c *Config) { c.Database.DSN = ""; c.Teams.AppPassword = "p" }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Errorf("expected valid config, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestTeamsConfig_DecodeCredentials(t *testing.T) {
	pem := "-----BEGIN CERTIFICATE-----\nabc\n-----END CERTIFICATE-----\n"
	cfg := TeamsConfig{
		AppCertificate: base64.StdEncoding.EncodeToString([]byte(pem)),
		AppPrivateKey:  base64.StdEncoding.EncodeToString([]byte("key material")),
	}

	cert, err := cfg.DecodeCertificate()
	if err != nil {
		t.Fatalf("decode certificate failed: %v", err)
	}
	if string(cert) != pem {
		t.Errorf("unexpected certificate: %q", cert)
	}

	key, err := cfg.DecodePrivateKey()
	if err != nil {
		t.Fatalf("decode key failed: %v", err)
	}
	if string(key) != "key material" {
		t.Errorf("unexpected key: %q", key)
	}

	cfg.AppCertificate = "not-base64!!!"
	if _, err := cfg.DecodeCertificate(); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}
