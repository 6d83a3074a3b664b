// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package main

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/cropwise/cropwise/internal/config"
	"github.com/cropwise/cropwise/internal/logging"
	"github.com/cropwise/cropwise/internal/share"
	sharepostgres "github.com/cropwise/cropwise/internal/share/postgres"
	"github.com/cropwise/cropwise/internal/store"
)

// NewSweepCmd creates the sweep subcommand.
func NewSweepCmd() *cobra.Command {
	return newSweepCmdWithDeps(nil)
}

func newSweepCmdWithDeps(deps *CommonDeps) *cobra.Command {
	if deps == nil {
		deps = &CommonDeps{}
	}
	deps.applyDefaults()

	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired shared reports once",
		Long: `Delete shared reports past their expiry and exit. Useful from cron
when serve runs with the sweeper disabled or is scaled to zero.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd, deps)
		},
	}
}

func runSweep(cmd *cobra.Command, deps *CommonDeps) error {
	cfg, err := loadConfig(cmd, deps.ConfigLoader)
	if err != nil {
		return err
	}
	if cfg.Storage.Driver != config.DriverPostgres {
		return oops.Code(config.CodeInvalid).
			With("driver", cfg.Storage.Driver).
			Errorf("sweep needs persistent storage")
	}
	logger := logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := deps.PoolFactory(ctx, cfg.Storage.DatabaseURL, store.ConnectOptions{
		Attempts: cfg.Storage.ConnectAttempts,
		MaxConns: 1,
		Logger:   logger,
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	janitor := share.NewJanitor(sharepostgres.NewReportRepository(pool), time.Hour, logger)
	n, err := janitor.RunOnce(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("Deleted %d expired report(s)\n", n)
	return nil
}
