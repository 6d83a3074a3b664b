// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

// Package config loads cropwise configuration.
//
// Sources are layered, later ones winning: built-in defaults, the YAML
// config file, command-line flags that were explicitly set, then the
// well-known environment variables (optionally seeded from a .env file).
package config

import (
	"time"

	"github.com/cropwise/cropwise/internal/auth"
	"github.com/cropwise/cropwise/internal/history"
	"github.com/cropwise/cropwise/internal/ratelimit"
	"github.com/cropwise/cropwise/internal/share"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the complete service configuration.
type Config struct {
	Env           string              `koanf:"env"`
	Server        ServerConfig        `koanf:"server"`
	Log           LogConfig           `koanf:"log"`
	Observability ObservabilityConfig `koanf:"observability"`
	Storage       StorageConfig       `koanf:"storage"`
	Redis         RedisConfig         `koanf:"redis"`
	Auth          AuthConfig          `koanf:"auth"`
	RateLimit     RateLimitConfig     `koanf:"ratelimit"`
	Share         ShareConfig         `koanf:"share"`
	History       HistoryConfig       `koanf:"history"`
}

// ServerConfig configures the public HTTP listener.
type ServerConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	// TrustProxy takes client addresses from X-Forwarded-For.
	TrustProxy bool `koanf:"trust_proxy"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// ObservabilityConfig configures the metrics and health listener.
// An empty Addr disables it.
type ObservabilityConfig struct {
	Addr string `koanf:"addr"`
}

// StorageConfig selects and configures persistence.
type StorageConfig struct {
	Driver          string `koanf:"driver"`
	DatabaseURL     string `koanf:"database_url"`
	MaxConns        int32  `koanf:"max_conns"`
	ConnectAttempts uint64 `koanf:"connect_attempts"`
	// AutoMigrate applies pending migrations on serve.
	AutoMigrate bool `koanf:"auto_migrate"`
}

// RedisConfig points the rate limiter at a shared Redis. An empty URL keeps
// rate-limit state in process memory.
type RedisConfig struct {
	URL    string `koanf:"url"`
	Prefix string `koanf:"prefix"`
}

// AuthConfig configures credentials and sessions.
type AuthConfig struct {
	JWTSecret    string        `koanf:"jwt_secret"`
	Issuer       string        `koanf:"issuer"`
	BcryptCost   int           `koanf:"bcrypt_cost"`
	SessionTTL   time.Duration `koanf:"session_ttl"`
	RememberTTL  time.Duration `koanf:"remember_ttl"`
	StoreTimeout time.Duration `koanf:"store_timeout"`
}

// RateLimitConfig configures request throttling.
type RateLimitConfig struct {
	Policies      []ratelimit.Policy `koanf:"policies"`
	SweepInterval time.Duration      `koanf:"sweep_interval"`
}

// ShareConfig configures shared reports.
type ShareConfig struct {
	BaseURL       string        `koanf:"base_url"`
	TTL           time.Duration `koanf:"ttl"`
	CreateTimeout time.Duration `koanf:"create_timeout"`
	GetTimeout    time.Duration `koanf:"get_timeout"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// HistoryConfig configures scan and recommendation history.
type HistoryConfig struct {
	ListLimit int `koanf:"list_limit"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Env: EnvDevelopment,
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
		Observability: ObservabilityConfig{
			Addr: "127.0.0.1:9100",
		},
		Storage: StorageConfig{
			Driver:          DriverPostgres,
			MaxConns:        10,
			ConnectAttempts: 5,
		},
		Redis: RedisConfig{
			Prefix: ratelimit.DefaultRedisPrefix,
		},
		Auth: AuthConfig{
			Issuer:       auth.DefaultTokenIssuer,
			BcryptCost:   auth.DefaultBcryptCost,
			SessionTTL:   auth.SessionTTL,
			RememberTTL:  auth.RememberSessionTTL,
			StoreTimeout: auth.DefaultStoreTimeout,
		},
		RateLimit: RateLimitConfig{
			Policies:      ratelimit.DefaultPolicies(),
			SweepInterval: ratelimit.DefaultSweepInterval,
		},
		Share: ShareConfig{
			BaseURL:       share.DefaultBaseURL,
			TTL:           share.DefaultTTL,
			CreateTimeout: share.DefaultCreateTimeout,
			GetTimeout:    share.DefaultGetTimeout,
			SweepInterval: share.DefaultSweepInterval,
		},
		History: HistoryConfig{
			ListLimit: history.DefaultListLimit,
		},
	}
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}
