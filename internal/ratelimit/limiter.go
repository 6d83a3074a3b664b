// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

// Package ratelimit implements fixed-window request counting keyed by
// client and route.
//
// A window opens on the first request for a key and lasts for the window
// duration. Every request in the window increments the count; requests are
// allowed while the count is at most the limit. The window is never reset
// early, and an expired window is replaced by a fresh one on the next hit.
package ratelimit

import (
	"context"
	"time"

	"github.com/samber/oops"
)

// Defaults applied to the authentication routes.
const (
	DefaultLimit  = 5
	DefaultWindow = 15 * time.Minute
)

// CodeRateLimited tags errors for rejected requests.
const CodeRateLimited = "RATE_LIMITED"

// Result describes the state of a key after a hit.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Store counts hits per key within a fixed window.
type Store interface {
	// Hit records one request for key and returns the count in the current
	// window and when that window ends. An absent or expired window is
	// replaced by one of length window starting at now with a count of 1.
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (count int, resetAt time.Time, err error)
}

// Limiter applies a limit to the counts kept by a Store.
type Limiter struct {
	store Store
	now   func() time.Time
}

// NewLimiter creates a Limiter over store.
func NewLimiter(store Store) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// WithClock returns a copy of the limiter that reads time from now.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	c := *l
	c.now = now
	return &c
}

// Check records a hit for key and reports whether it is within limit.
func (l *Limiter) Check(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	if limit <= 0 || window <= 0 {
		return Result{}, oops.Code("RATE_LIMIT_INVALID").
			With("limit", limit).
			With("window", window.String()).
			Errorf("limit and window must be positive")
	}

	count, resetAt, err := l.store.Hit(ctx, key, window, l.now())
	if err != nil {
		return Result{}, oops.With("operation", "rate limit hit").With("key", key).Wrap(err)
	}

	return Result{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: max(0, limit-count),
		ResetAt:   resetAt,
	}, nil
}
