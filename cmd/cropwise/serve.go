// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/cropwise/cropwise/internal/auth"
	authmemory "github.com/cropwise/cropwise/internal/auth/memory"
	authpostgres "github.com/cropwise/cropwise/internal/auth/postgres"
	"github.com/cropwise/cropwise/internal/config"
	"github.com/cropwise/cropwise/internal/history"
	historymemory "github.com/cropwise/cropwise/internal/history/memory"
	historypostgres "github.com/cropwise/cropwise/internal/history/postgres"
	"github.com/cropwise/cropwise/internal/httpapi"
	"github.com/cropwise/cropwise/internal/logging"
	"github.com/cropwise/cropwise/internal/observability"
	"github.com/cropwise/cropwise/internal/ratelimit"
	"github.com/cropwise/cropwise/internal/share"
	sharememory "github.com/cropwise/cropwise/internal/share/memory"
	sharepostgres "github.com/cropwise/cropwise/internal/share/postgres"
	"github.com/cropwise/cropwise/internal/store"
	"github.com/cropwise/cropwise/pkg/errutil"
)

const serviceName = "cropwise"

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the HTTP API server together with the metrics and health
endpoints and the expired report sweeper.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	cmd.Flags().String("addr", ":8080", "API listen address")
	cmd.Flags().Bool("trust-proxy", false, "take client addresses from X-Forwarded-For")
	cmd.Flags().String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().Bool("auto-migrate", false, "apply pending migrations before serving")
	cmd.Flags().String("redis-url", "", "Redis URL for shared rate limit state (empty = in memory)")
	cmd.Flags().String("site-url", share.DefaultBaseURL, "public site URL used in share links")
	cmd.Flags().Duration("share-interval", share.DefaultSweepInterval, "interval between expired report sweeps")

	return cmd
}

// backends are the repositories selected by the storage driver.
type backends struct {
	accounts auth.AccountRepository
	reports  share.Repository
	history  history.Repository
	ready    observability.ReadinessChecker
	close    func()
}

// openBackends connects the configured storage. The memory driver needs no
// external services and loses all data on exit.
func openBackends(ctx context.Context, cfg *config.Config, deps *ServeDeps, logger *slog.Logger) (*backends, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		logger.Warn("using in-memory storage; data is lost on exit")
		return &backends{
			accounts: authmemory.NewAccountRepository(),
			reports:  sharememory.NewReportRepository(),
			history:  historymemory.NewHistoryRepository(),
			ready:    func(context.Context) error { return nil },
			close:    func() {},
		}, nil
	}

	if cfg.Storage.AutoMigrate {
		if err := autoMigrate(cfg.Storage.DatabaseURL, deps.MigratorFactory, logger); err != nil {
			return nil, err
		}
	}

	pool, err := deps.PoolFactory(ctx, cfg.Storage.DatabaseURL, store.ConnectOptions{
		Attempts: cfg.Storage.ConnectAttempts,
		MaxConns: cfg.Storage.MaxConns,
		Logger:   logger,
	})
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	logger.Info("connected to database")

	return &backends{
		accounts: authpostgres.NewAccountRepository(pool),
		reports:  sharepostgres.NewReportRepository(pool),
		history:  historypostgres.NewHistoryRepository(pool),
		ready: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return oops.Code("DB_UNREACHABLE").With("operation", "ping database").Wrap(err)
			}
			return nil
		},
		close: pool.Close,
	}, nil
}

// autoMigrate applies pending migrations and releases the migrator.
func autoMigrate(databaseURL string, factory func(string) (AutoMigrator, error), logger *slog.Logger) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	logger.Info("running database migrations")
	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	logger.Info("database migrations complete")
	return nil
}

// rateLimitStore selects Redis when configured and process memory otherwise.
// The returned cleanup releases the store.
func rateLimitStore(cfg *config.Config, deps *ServeDeps, reg prometheus.Registerer, logger *slog.Logger) (ratelimit.Store, func(), error) {
	if cfg.Redis.URL != "" {
		client, err := deps.RedisFactory(cfg.Redis.URL)
		if err != nil {
			return nil, nil, oops.Code("REDIS_CONNECT_FAILED").With("operation", "create redis client").Wrap(err)
		}
		cleanup := func() {
			if err := client.Close(); err != nil {
				logger.Warn("failed to close redis client", "error", err)
			}
		}
		logger.Info("rate limit state in redis", "prefix", cfg.Redis.Prefix)
		return ratelimit.NewRedisStore(client, cfg.Redis.Prefix), cleanup, nil
	}

	mem := ratelimit.NewMemoryStoreWithRegistry(reg)
	mem.StartSweeper(cfg.RateLimit.SweepInterval)
	return mem, func() {
		//nolint:errcheck // Close only stops the sweeper
		mem.Close()
	}, nil
}

// runServeWithDeps starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.applyDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd, deps.ConfigLoader)
	if err != nil {
		return oops.With("operation", "load configuration").Wrap(err)
	}

	logger := logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level)
	logger.Info("starting cropwise",
		"env", cfg.Env,
		"addr", cfg.Server.Addr,
		"storage", cfg.Storage.Driver)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b, err := openBackends(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer b.close()

	var (
		obsServer ObservabilityServer
		metrics   *observability.Metrics
		registry  prometheus.Registerer
	)
	if cfg.Observability.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Observability.Addr, b.ready)
		metrics = obsServer.Metrics()
		registry = obsServer.Registry()
	} else {
		reg := prometheus.NewRegistry()
		metrics = observability.NewMetrics(reg)
		registry = reg
	}

	limitStore, closeStore, err := rateLimitStore(cfg, deps, registry, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	limiter, err := ratelimit.NewMiddleware(ratelimit.NewLimiter(limitStore), ratelimit.MiddlewareConfig{
		Policies:   cfg.RateLimit.Policies,
		TrustProxy: cfg.Server.TrustProxy,
		Logger:     logger,
		OnReject:   metrics.RateLimited,
	})
	if err != nil {
		return err
	}

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if tokens.UsesFallbackSecret() {
		logger.Warn("no JWT secret configured; signing tokens with the fallback secret")
	}
	authSvc, err := auth.NewServiceWithLogger(b.accounts, auth.NewBcryptHasher(cfg.Auth.BcryptCost), auth.ServiceConfig{
		StoreTimeout: cfg.Auth.StoreTimeout,
	}, logger)
	if err != nil {
		return err
	}
	sessions, err := auth.NewSessionBinder(tokens, authSvc, auth.SessionConfig{
		TTL:         cfg.Auth.SessionTTL,
		RememberTTL: cfg.Auth.RememberTTL,
		Secure:      cfg.IsProduction(),
	})
	if err != nil {
		return err
	}

	shares, err := share.NewService(b.reports, share.Config{
		BaseURL:       cfg.Share.BaseURL,
		TTL:           cfg.Share.TTL,
		CreateTimeout: cfg.Share.CreateTimeout,
		GetTimeout:    cfg.Share.GetTimeout,
	}, logger)
	if err != nil {
		return err
	}
	hist, err := history.NewService(b.history, history.Config{
		StoreTimeout: cfg.Auth.StoreTimeout,
		ListLimit:    cfg.History.ListLimit,
	}, logger)
	if err != nil {
		return err
	}

	router, err := httpapi.NewRouter(httpapi.Deps{
		Auth:       authSvc,
		Sessions:   sessions,
		Shares:     shares,
		History:    hist,
		RateLimit:  limiter,
		Metrics:    metrics,
		Logger:     logger,
		Production: cfg.IsProduction(),
	})
	if err != nil {
		return err
	}

	janitor := share.NewJanitor(b.reports, cfg.Share.SweepInterval, logger)
	janitor.Start(ctx)
	defer janitor.Stop()

	if obsServer != nil {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Observability.Addr).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer stopCancel()
			if err := obsServer.Stop(stopCtx); err != nil {
				logger.Warn("error stopping observability server", "error", err)
			}
		}()
	}

	listener, err := deps.ListenerFactory("tcp", cfg.Server.Addr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", cfg.Server.Addr).Wrap(err)
	}
	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Cropwise API listening on " + listener.Addr().String())
	logger.Info("cropwise ready", "addr", listener.Addr().String())

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err, ok := <-serveErr:
		if ok && err != nil {
			runErr = oops.Code("SERVE_FAILED").Wrap(err)
		}
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		errutil.LogError(logger, "error shutting down http server", err)
	}

	logger.Info("shutdown complete")
	return runErr
}

// monitorServerErrors cancels ctx when a server reports an error.
// It exits when an error is received, the channel is closed, or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
