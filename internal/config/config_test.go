package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl: %v", cfg.Auth.TokenTTL)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  addr: \":9090\"\nrate_limit:\n  per_second: 5\n  burst: 10\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(EnvAddr, ":7070")
	t.Setenv(EnvTokenTTL, "3600")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Fatalf("env override lost: %s", cfg.Server.Addr)
	}
	if cfg.RateLimit.PerSecond != 5 || cfg.RateLimit.Burst != 10 {
		t.Fatalf("file values lost: %+v", cfg.RateLimit)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Fatalf("ttl override lost: %v", cfg.Auth.TokenTTL)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("rate_limit:\n  per_second: -1\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSecretRequiresEnv(t *testing.T) {
	t.Setenv(EnvAuthSecret, "")
	if _, err := Secret(); err == nil {
		t.Fatal("expected error when secret is unset")
	}
	t.Setenv(EnvAuthSecret, "test-secret")
	secret, err := Secret()
	if err != nil {
		t.Fatalf("Secret: %v", err)
	}
	if string(secret) != "test-secret" {
		t.Fatalf("unexpected secret: %q", secret)
	}
}
