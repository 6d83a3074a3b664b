// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

// Package timebox bounds how long a call into a store may block its caller.
//
// The ceiling holds even if the callee ignores its context: the operation
// runs in its own goroutine and the caller returns as soon as the deadline
// passes. A timed out operation may still finish in the background.
package timebox

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
)

// CodeTimeout tags errors returned when an operation exceeds its ceiling.
const CodeTimeout = "TIMEOUT"

type result[T any] struct {
	value T
	err   error
}

// Run executes fn with a deadline of limit. A limit of zero or less runs fn
// directly. Returns a CodeTimeout error when the ceiling is hit while the
// parent context is still alive.
func Run[T any](ctx context.Context, limit time.Duration, operation string, fn func(context.Context) (T, error)) (T, error) {
	if limit <= 0 {
		return fn(ctx)
	}

	boxed, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := fn(boxed)
		done <- result[T]{value: v, err: err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, timeoutError(operation, limit, r.err)
		}
		return r.value, r.err
	case <-boxed.Done():
		if err := ctx.Err(); err != nil {
			return zero, oops.With("operation", operation).Wrap(err)
		}
		return zero, timeoutError(operation, limit, boxed.Err())
	}
}

// Do is Run for operations without a result value.
func Do(ctx context.Context, limit time.Duration, operation string, fn func(context.Context) error) error {
	_, err := Run(ctx, limit, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// IsTimeout reports whether err carries CodeTimeout.
func IsTimeout(err error) bool {
	if oopsErr, ok := oops.AsOops(err); ok {
		return oopsErr.Code() == CodeTimeout
	}
	return false
}

// timeoutError is built fresh rather than wrapping cause, since oops reports
// the innermost code and a store error code would otherwise mask CodeTimeout.
func timeoutError(operation string, limit time.Duration, cause error) error {
	return oops.Code(CodeTimeout).
		With("operation", operation).
		With("limit", limit.String()).
		With("cause", cause.Error()).
		Errorf("%s did not complete within %s", operation, limit)
}
