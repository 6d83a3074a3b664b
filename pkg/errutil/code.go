// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package errutil

import (
	"fmt"

	"github.com/samber/oops"
)

// Code returns the innermost oops error code in err's chain, or "" if err
// carries none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code := oopsErr.Code()
	if code == nil {
		return ""
	}
	if s, ok := code.(string); ok {
		return s
	}
	return fmt.Sprint(code)
}

// ContextValue returns the value stored under key in err's oops context.
func ContextValue(err error, key string) (any, bool) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil, false
	}
	v, ok := oopsErr.Context()[key]
	return v, ok
}
