// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode asserts that err is an oops error with the given code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	assert.Equal(t, code, oopsErr.Code())
}

// AssertErrorContext asserts that err is an oops error with the given context key/value.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	ctx := oopsErr.Context()
	assert.Contains(t, ctx, key)
	assert.Equal(t, value, ctx[key])
}

// AssertFieldError asserts that err carries code and names field in its
// "field" context, as validation and duplicate errors do.
func AssertFieldError(t *testing.T, err error, code, field string) {
	t.Helper()
	require.Error(t, err)
	AssertErrorCode(t, err, code)
	got, ok := ContextValue(err, "field")
	require.True(t, ok, "expected a field context on %s error", code)
	assert.Equal(t, field, got)
}
