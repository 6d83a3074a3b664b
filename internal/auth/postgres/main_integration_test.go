// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

//go:build integration

package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cropwise/cropwise/internal/store"
)

// testPool is the shared database pool for integration tests.
var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("cropwise_test"),
		postgres.WithUsername("cropwise"),
		postgres.WithPassword("cropwise"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		panic("failed to start postgres container: " + err.Error())
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to get connection string: " + err.Error())
	}

	migrator, err := store.NewMigrator(connStr)
	if err == nil {
		err = migrator.Up()
		_ = migrator.Close()
	}
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to run migrations: " + err.Error())
	}

	testPool, err = store.Connect(ctx, connStr, store.ConnectOptions{})
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to connect: " + err.Error())
	}

	code := m.Run()

	testPool.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}
