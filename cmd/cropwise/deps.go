// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package main

import (
	"context"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/cropwise/cropwise/internal/config"
	"github.com/cropwise/cropwise/internal/observability"
	"github.com/cropwise/cropwise/internal/store"
)

// CommonDeps contains dependencies shared by all commands.
// All fields with nil values will use their default implementations.
type CommonDeps struct {
	// ConfigLoader builds the configuration.
	// Default: config.Load
	ConfigLoader func(opts config.Options) (*config.Config, error)

	// PoolFactory opens the PostgreSQL pool.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, dsn string, opts store.ConnectOptions) (Pool, error)
}

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	CommonDeps

	// MigratorFactory creates a migrator for auto-migration.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// RedisFactory connects to the rate limit Redis.
	// Default: redis.ParseURL + redis.NewClient
	RedisFactory func(url string) (RedisClient, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// ListenerFactory creates the API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)
}

// MigrateDeps contains injectable dependencies for the migrate command.
type MigrateDeps struct {
	// ConfigLoader builds the configuration.
	// Default: config.Load
	ConfigLoader func(opts config.Options) (*config.Config, error)

	// MigratorFactory creates a migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

// Pool wraps the methods used from *pgxpool.Pool.
type Pool interface {
	store.Querier
	Ping(ctx context.Context) error
	Close()
}

// AutoMigrator wraps the methods used by serve from store.Migrator.
type AutoMigrator interface {
	Up() error
	Close() error
}

// Migrator wraps the methods used by the migrate command from store.Migrator.
type Migrator interface {
	AutoMigrator
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
}

// RedisClient wraps the methods used from *redis.Client.
type RedisClient interface {
	redis.Scripter
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
	Registry() *prometheus.Registry
}

func (d *CommonDeps) applyDefaults() {
	if d.ConfigLoader == nil {
		d.ConfigLoader = config.Load
	}
	if d.PoolFactory == nil {
		d.PoolFactory = func(ctx context.Context, dsn string, opts store.ConnectOptions) (Pool, error) {
			return store.Connect(ctx, dsn, opts)
		}
	}
}

func (d *ServeDeps) applyDefaults() {
	d.CommonDeps.applyDefaults()
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(url string) (AutoMigrator, error) {
			return store.NewMigrator(url)
		}
	}
	if d.RedisFactory == nil {
		d.RedisFactory = newRedisClient
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if d.ListenerFactory == nil {
		d.ListenerFactory = net.Listen
	}
}

func (d *MigrateDeps) applyDefaults() {
	if d.ConfigLoader == nil {
		d.ConfigLoader = config.Load
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(url string) (Migrator, error) {
			return store.NewMigrator(url)
		}
	}
}

func newRedisClient(url string) (RedisClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}
