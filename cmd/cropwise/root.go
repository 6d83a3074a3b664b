// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/cropwise/cropwise/internal/config"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the cropwise CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cropwise",
		Short: "Cropwise - crop health and recommendation backend",
		Long: `Cropwise serves the account, profile, history and report sharing
API behind the crop disease scanner and crop recommendation tools.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/cropwise/config.yaml)")
	flags.StringVar(&envFile, "env-file", config.DefaultEnvFile, "dotenv file read before the environment")
	flags.String("env", config.EnvDevelopment, "environment (development, production or test)")
	flags.String("log-format", "json", "log format (json or text)")
	flags.String("log-level", "info", "log level (debug, info, warn or error)")
	flags.String("storage", config.DriverPostgres, "storage driver (postgres or memory)")
	flags.String("database-url", "", "PostgreSQL connection URL")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSweepCmd())

	return cmd
}

// loadConfig reads configuration for cmd from the global file flags, the
// command's flags and the environment.
func loadConfig(cmd *cobra.Command, loader func(config.Options) (*config.Config, error)) (*config.Config, error) {
	if loader == nil {
		loader = config.Load
	}
	return loader(config.Options{
		File:    configFile,
		Flags:   cmd.Flags(),
		EnvFile: envFile,
	})
}
