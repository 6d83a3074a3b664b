// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/cropwise/cropwise/internal/config"
	"github.com/cropwise/cropwise/internal/store"
)

// NewMigrateCmd creates the migrate subcommand. Without a subcommand it
// applies all pending migrations.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmdWithDeps(nil)
}

func newMigrateCmdWithDeps(deps *MigrateDeps) *cobra.Command {
	if deps == nil {
		deps = &MigrateDeps{}
	}
	deps.applyDefaults()

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Run all pending database migrations against the PostgreSQL database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, runMigrateUp)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, runMigrateUp)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(cmd *cobra.Command, m Migrator) error {
				cmd.Println("Rolling back migrations...")
				if err := m.Down(); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "roll back migrations").Wrap(err)
				}
				cmd.Println("Rollback completed successfully")
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:                "steps N",
		Short:              "Apply N migrations, or roll back when N is negative",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := integerArg(cmd, args)
			if err != nil {
				return err
			}
			return withMigrator(cmd, deps, func(cmd *cobra.Command, m Migrator) error {
				if err := m.Steps(n); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "migrate steps").With("steps", n).Wrap(err)
				}
				cmd.Printf("Migrated %d step(s)\n", n)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long: `Mark VERSION as the current schema version and clear the dirty flag.
Use after repairing a partially applied migration by hand.`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := integerArg(cmd, args)
			if err != nil {
				return err
			}
			return withMigrator(cmd, deps, func(cmd *cobra.Command, m Migrator) error {
				if err := m.Force(v); err != nil {
					return err
				}
				cmd.Printf("Forced schema version to %d\n", v)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, runMigrateStatus)
		},
	})

	return cmd
}

// withMigrator opens a migrator for the configured database, runs fn and
// closes the migrator.
func withMigrator(cmd *cobra.Command, deps *MigrateDeps, fn func(*cobra.Command, Migrator) error) (err error) {
	cfg, err := loadConfig(cmd, deps.ConfigLoader)
	if err != nil {
		return err
	}
	url, err := getDatabaseURL(cfg)
	if err != nil {
		return err
	}

	m, err := deps.MigratorFactory(url)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(cmd, m)
}

func runMigrateUp(cmd *cobra.Command, m Migrator) error {
	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, m Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}

	state := "clean"
	if dirty {
		state = "dirty"
	}
	cmd.Printf("Current version: %d (%s)\n", version, state)
	if len(pending) == 0 {
		cmd.Println("No pending migrations")
		return nil
	}
	cmd.Printf("Pending migrations: %d\n", len(pending))
	for _, v := range pending {
		name, err := store.MigrationName(v)
		if err != nil || name == "" {
			name = fmt.Sprintf("%06d", v)
		}
		cmd.Println("  " + name)
	}
	return nil
}

// getDatabaseURL returns the configured database URL.
func getDatabaseURL(cfg *config.Config) (string, error) {
	if cfg == nil || cfg.Storage.DatabaseURL == "" {
		return "", oops.Code(config.CodeInvalid).Errorf("a database URL is required (DATABASE_URL or --database-url)")
	}
	return cfg.Storage.DatabaseURL, nil
}

// integerArg extracts the single integer argument of a command that parses
// its own flags, so that "-1" is read as a number rather than a shorthand.
// Remaining arguments are parsed as flags.
func integerArg(cmd *cobra.Command, args []string) (int, error) {
	var numbers, rest []string
	for _, a := range args {
		if _, err := strconv.Atoi(a); err == nil {
			numbers = append(numbers, a)
			continue
		}
		rest = append(rest, a)
	}
	flags := cmd.Flags()
	flags.AddFlagSet(cmd.InheritedFlags())
	if err := flags.Parse(rest); err != nil {
		return 0, err
	}
	numbers = append(numbers, flags.Args()...)
	if len(numbers) != 1 {
		return 0, oops.Code("INVALID_VERSION").
			With("args", numbers).
			Errorf("%s expects exactly one integer argument, got %d", cmd.Name(), len(numbers))
	}
	return parseForceVersion(numbers[0])
}

// parseForceVersion parses a migration version or step count argument.
// Parsing stops at the first non-digit.
func parseForceVersion(s string) (int, error) {
	s = strings.TrimSpace(s)
	var v int
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("invalid version %q: must be an integer", s)
	}
	return v, nil
}
