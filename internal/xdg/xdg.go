// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

// Package xdg provides XDG Base Directory paths for cropwise.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "cropwise"

// ConfigFileName is the name of the config file inside ConfigDir.
const ConfigFileName = "config.yaml"

// ConfigDir returns the XDG config directory for cropwise.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", oops.Code("XDG_NO_HOME").Wrap(err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName), nil
}

// ConfigFile returns the default config file path and whether it exists.
func ConfigFile() (string, bool) {
	dir, err := ConfigDir()
	if err != nil {
		return "", false
	}
	path := filepath.Join(dir, ConfigFileName)
	info, err := os.Stat(path)
	return path, err == nil && !info.IsDir()
}
