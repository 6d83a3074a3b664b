// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cropwise/cropwise/internal/config"
)

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	for _, sub := range []string{"serve", "migrate", "sweep"} {
		assert.Contains(t, output, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_ConfigFlag(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantFlag string
	}{
		{
			name:     "separate value",
			args:     []string{"--config", "/path/to/config.yaml", "--help"},
			wantFlag: "/path/to/config.yaml",
		},
		{
			name:     "with equals",
			args:     []string{"--config=/etc/cropwise.yaml", "--help"},
			wantFlag: "/etc/cropwise.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile = ""

			cmd := NewRootCmd()
			cmd.SetOut(new(bytes.Buffer))
			cmd.SetArgs(tt.args)

			require.NoError(t, cmd.Execute())
			assert.Equal(t, tt.wantFlag, configFile)
		})
	}
}

func TestRootCommand_SharedFlagsMapToConfigKeys(t *testing.T) {
	cmd := NewRootCmd()
	for _, name := range []string{"env", "log-format", "log-level", "storage", "database-url"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
		assert.Contains(t, config.FlagKeys, name)
	}

	serve := NewServeCmd()
	for _, name := range []string{"addr", "trust-proxy", "metrics-addr", "auto-migrate", "redis-url", "site-url", "share-interval"} {
		assert.NotNil(t, serve.Flags().Lookup(name), name)
		assert.Contains(t, config.FlagKeys, name)
	}
}

func TestRootCommand_VersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	cmd.Version = "test-version"
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "test-version")
}

func TestLoadConfig_FlagsOverrideDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CROPWISE_ENV", "")
	t.Setenv("LOG_LEVEL", "")
	configFile = ""
	envFile = t.TempDir() + "/missing.env"
	t.Cleanup(func() { envFile = config.DefaultEnvFile })

	root := NewRootCmd()
	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	require.NoError(t, serve.ParseFlags([]string{"--storage", "memory", "--log-level", "debug", "--addr", "127.0.0.1:0"}))

	cfg, err := loadConfig(serve, nil)
	require.NoError(t, err)
	assert.Equal(t, config.DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:0", cfg.Server.Addr)
	assert.Equal(t, "json", cfg.Log.Format, "unset flags keep defaults")
}
