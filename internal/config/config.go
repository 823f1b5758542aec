// Package config loads service configuration from YAML with environment
// variable overrides. Secrets are only ever taken from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables recognized by applyEnvOverrides. RBAC_AUTH_SECRET has
// no YAML counterpart on purpose.
const (
	EnvAddr       = "RBAC_ADDR"
	EnvDSN        = "RBAC_PG_DSN"
	EnvAuthSecret = "RBAC_AUTH_SECRET"
	EnvTokenTTL   = "RBAC_TOKEN_TTL"
)

// Config is the root configuration for the RBAC service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	ReadTimeout  int    `yaml:"read_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds
	IdleTimeout  int    `yaml:"idle_timeout"`  // seconds
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// DatabaseConfig contains PostgreSQL connection settings. An empty DSN puts
// the server into in-memory demo mode.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // minutes
}

// AuthConfig contains session token settings. The signing secret is not part
// of this struct; it is read separately from RBAC_AUTH_SECRET.
type AuthConfig struct {
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// RateLimitConfig contains the per-client token bucket parameters.
type RateLimitConfig struct {
	PerSecond int `yaml:"per_second"`
	Burst     int `yaml:"burst"`
}

// Load reads the YAML file at path (if path is non-empty), applies env
// overrides and validates the result. With an empty path only defaults and
// environment apply.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Secret reads the token signing secret from the environment.
func Secret() ([]byte, error) {
	raw := os.Getenv(EnvAuthSecret)
	if raw == "" {
		return nil, fmt.Errorf("%s is not set", EnvAuthSecret)
	}
	return []byte(raw), nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15,
			WriteTimeout: 15,
			IdleTimeout:  60,
			MaxBodyBytes: 1 << 20,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 15,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			PerSecond: 20,
			Burst:     40,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvAddr); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv(EnvDSN); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv(EnvTokenTTL); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Auth.TokenTTL = time.Duration(secs) * time.Second
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server addr is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	if c.RateLimit.PerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("rate limit values must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("max body bytes must be positive")
	}
	return nil
}
