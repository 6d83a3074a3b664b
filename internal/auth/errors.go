// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Error codes attached to oops errors returned by this package.
// The HTTP layer maps each of them to a status code.
const (
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeAccountLocked      = "AUTH_ACCOUNT_LOCKED"
	CodeDuplicate          = "AUTH_DUPLICATE"
	CodeUnauthenticated    = "AUTH_UNAUTHENTICATED"
	CodeAccountNotFound    = "ACCOUNT_NOT_FOUND"

	CodeInvalidName     = "AUTH_INVALID_NAME"
	CodeInvalidUsername = "AUTH_INVALID_USERNAME"
	CodeInvalidEmail    = "AUTH_INVALID_EMAIL"
	CodeInvalidPassword = "AUTH_INVALID_PASSWORD"
	CodeInvalidProfile  = "AUTH_INVALID_PROFILE"

	CodeTokenInvalid = "TOKEN_INVALID"
	CodeTokenExpired = "TOKEN_EXPIRED"

	CodeInternal = "AUTH_INTERNAL"
)

// Duplicate field names reported in the "field" context of CodeDuplicate errors.
const (
	FieldEmail    = "email"
	FieldUsername = "username"
)
