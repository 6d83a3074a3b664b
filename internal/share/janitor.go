// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package share

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/cropwise/cropwise/pkg/errutil"
)

// DefaultSweepInterval is how often the Janitor deletes expired reports.
const DefaultSweepInterval = time.Hour

// Janitor periodically deletes expired reports from a Repository.
// Once swept, a report reads as not found rather than expired.
type Janitor struct {
	repo     Repository
	interval time.Duration
	logger   *slog.Logger
	clock    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJanitor creates a Janitor. A non-positive interval selects DefaultSweepInterval.
func NewJanitor(repo Repository, interval time.Duration, logger *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{repo: repo, interval: interval, logger: logger, clock: time.Now}
}

// RunOnce deletes every report that expired before now.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	n, err := j.repo.DeleteExpired(ctx, j.clock())
	if err != nil {
		return 0, oops.With("operation", "delete expired reports").Wrap(err)
	}
	if n > 0 {
		j.logger.InfoContext(ctx, "deleted expired shared reports", "count", n)
	}
	return n, nil
}

// Start runs RunOnce immediately and then every interval until Stop or ctx
// cancellation.
func (j *Janitor) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)
	j.wg.Add(1)
	go j.run(ctx)
}

// Stop cancels the loop and waits for it to exit.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
}

func (j *Janitor) run(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
			errutil.LogErrorContext(ctx, j.logger, "expired report sweep failed", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
