// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package config

import (
	"net/url"
	"slices"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

func invalid(key string, format string, args ...any) error {
	return oops.Code(CodeInvalid).With("key", key).Errorf(format, args...)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if !slices.Contains([]string{EnvDevelopment, EnvProduction, EnvTest}, c.Env) {
		return invalid("env", "env must be development, production or test, got %q", c.Env)
	}
	if c.Server.Addr == "" {
		return invalid("server.addr", "server.addr is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "warning", "error"}, c.Log.Level) {
		return invalid("log.level", "log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return invalid("storage.database_url", "DATABASE_URL is required for the postgres driver")
		}
	case DriverMemory:
		if c.IsProduction() {
			return invalid("storage.driver", "the memory driver cannot be used in production")
		}
	default:
		return invalid("storage.driver", "storage.driver must be postgres or memory, got %q", c.Storage.Driver)
	}

	if c.Redis.URL != "" {
		if _, err := url.Parse(c.Redis.URL); err != nil {
			return invalid("redis.url", "redis.url is not a valid URL")
		}
	}

	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return invalid("auth.bcrypt_cost", "auth.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Auth.SessionTTL <= 0 || c.Auth.RememberTTL <= 0 {
		return invalid("auth.session_ttl", "session lifetimes must be positive")
	}
	if c.Auth.StoreTimeout <= 0 {
		return invalid("auth.store_timeout", "auth.store_timeout must be positive")
	}
	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return invalid("auth.jwt_secret", "JWT_SECRET is required in production")
	}

	for _, p := range c.RateLimit.Policies {
		if p.Limit <= 0 || p.Window <= 0 {
			return invalid("ratelimit.policies", "policy %q needs a positive limit and window", p.Name)
		}
		if _, err := glob.Compile(p.Pattern, '/'); err != nil {
			return invalid("ratelimit.policies", "policy %q has an invalid pattern %q", p.Name, p.Pattern)
		}
	}

	if u, err := url.Parse(c.Share.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("share.base_url", "share.base_url must be an absolute URL, got %q", c.Share.BaseURL)
	}
	if c.Share.TTL <= 0 || c.Share.CreateTimeout <= 0 || c.Share.GetTimeout <= 0 {
		return invalid("share", "share durations must be positive")
	}
	return nil
}
