// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/cropwise/cropwise/internal/ratelimit"
	"github.com/cropwise/cropwise/internal/xdg"
)

// CodeInvalid tags configuration errors.
const CodeInvalid = "CONFIG_INVALID"

// DefaultEnvFile is read, when present, before the environment.
const DefaultEnvFile = ".env"

// Options controls where Load reads from.
type Options struct {
	// File is an explicit config file. It must exist when set. When empty
	// the XDG config file is used if present.
	File string

	// Flags are consulted for keys listed in FlagKeys. Only flags that were
	// set on the command line override earlier sources.
	Flags *pflag.FlagSet

	// EnvFile is a dotenv file whose values fill variables missing from the
	// environment. Defaults to DefaultEnvFile; a missing file is ignored.
	EnvFile string

	// Getenv reads the environment. Defaults to os.Getenv.
	Getenv func(string) string
}

// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"env":            "env",
	"addr":           "server.addr",
	"trust-proxy":    "server.trust_proxy",
	"log-format":     "log.format",
	"log-level":      "log.level",
	"metrics-addr":   "observability.addr",
	"storage":        "storage.driver",
	"database-url":   "storage.database_url",
	"auto-migrate":   "storage.auto_migrate",
	"redis-url":      "redis.url",
	"site-url":       "share.base_url",
	"share-interval": "share.sweep_interval",
}

// envKeys maps well-known environment variables to configuration keys.
var envKeys = []struct {
	name string
	key  string
	conv func(string) (any, error)
}{
	{"CROPWISE_ENV", "env", asString},
	{"DATABASE_URL", "storage.database_url", asString},
	{"REDIS_URL", "redis.url", asString},
	{"JWT_SECRET", "auth.jwt_secret", asString},
	{"JWT_EXPIRES_IN", "auth.session_ttl", asDuration},
	{"BCRYPT_ROUNDS", "auth.bcrypt_cost", asInt},
	{"SITE_URL", "share.base_url", asString},
	{"LOG_LEVEL", "log.level", asString},
}

// Load builds a validated Config.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	path, err := configPath(opts.File)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code(CodeInvalid).With("file", path).Wrap(err)
		}
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := FlagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code(CodeInvalid).With("source", "flags").Wrap(err)
		}
	}

	getenv, err := environment(opts)
	if err != nil {
		return nil, err
	}
	for _, e := range envKeys {
		raw := strings.TrimSpace(getenv(e.name))
		if raw == "" {
			continue
		}
		v, err := e.conv(raw)
		if err != nil {
			return nil, oops.Code(CodeInvalid).With("env", e.name).Wrap(err)
		}
		if err := k.Set(e.key, v); err != nil {
			return nil, oops.Code(CodeInvalid).With("env", e.name).Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code(CodeInvalid).Wrap(err)
	}
	// Configured policies replace the defaults instead of merging into them.
	if k.Exists("ratelimit.policies") {
		var policies []ratelimit.Policy
		if err := k.Unmarshal("ratelimit.policies", &policies); err != nil {
			return nil, oops.Code(CodeInvalid).With("key", "ratelimit.policies").Wrap(err)
		}
		cfg.RateLimit.Policies = policies
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func configPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", oops.Code(CodeInvalid).With("file", explicit).Wrap(err)
		}
		return explicit, nil
	}
	if path, ok := xdg.ConfigFile(); ok {
		return path, nil
	}
	return "", nil
}

// environment layers the dotenv file under the real environment.
func environment(opts Options) (func(string) string, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	dotenv, err := godotenv.Read(envFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return getenv, nil
		}
		return nil, oops.Code(CodeInvalid).With("file", envFile).Wrap(err)
	}
	return func(name string) string {
		if v := getenv(name); v != "" {
			return v
		}
		return dotenv[name]
	}, nil
}

func asString(s string) (any, error) { return s, nil }

func asInt(s string) (any, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, oops.Errorf("%q is not an integer", s)
	}
	return n, nil
}

// asDuration accepts Go durations and day counts such as "7d".
func asDuration(s string) (any, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return nil, oops.Errorf("%q is not a valid day count", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil, oops.Errorf("%q is not a valid duration", s)
	}
	return d, nil
}
