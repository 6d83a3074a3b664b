// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err without a request context. See LogErrorContext.
func LogError(logger *slog.Logger, msg string, err error) {
	LogErrorContext(context.Background(), logger, msg, err)
}

// LogErrorContext logs err at error level through ctx, so handlers that read
// trace or request ids from the context can attach them.
//
// Oops errors contribute their code and context; a "field" context value is
// also lifted to a top-level attribute so that validation and duplicate
// failures can be filtered on. Extra attrs are appended as given.
func LogErrorContext(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	out := make([]any, 0, len(attrs)+8)
	out = append(out, "error", err.Error())

	if oopsErr, ok := oops.AsOops(err); ok {
		if code := Code(err); code != "" {
			out = append(out, "code", code)
		}
		if c := oopsErr.Context(); len(c) > 0 {
			if field, ok := c["field"]; ok {
				out = append(out, "field", field)
			}
			out = append(out, "context", c)
		}
	}

	logger.ErrorContext(ctx, msg, append(out, attrs...)...)
}
