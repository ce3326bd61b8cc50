package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  device_token_secret: "0123456789abcdef0123456789abcdef"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Auth.DeviceTokenTTL != 30*24*time.Hour {
		t.Fatalf("ttl = %s, want 720h", cfg.Auth.DeviceTokenTTL)
	}
	if cfg.Database.Path == "" {
		t.Fatal("expected database path default")
	}
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected missing device_token_secret to fail validation")
	}
}

func TestLoadRejectsShortSecret(t *testing.T) {
	path := writeConfig(t, `
auth:
  device_token_secret: "too-short"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected short device_token_secret to fail validation")
	}
}

func TestEnvOverridesSecret(t *testing.T) {
	path := writeConfig(t, `
auth:
  device_token_secret: "0123456789abcdef0123456789abcdef"
`)

	t.Setenv("EVENEMENT_DEVICE_TOKEN_SECRET", "fedcba9876543210fedcba9876543210")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.DeviceTokenSecret != "fedcba9876543210fedcba9876543210" {
		t.Fatalf("secret = %q, want env override", cfg.Auth.DeviceTokenSecret)
	}
}
