// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

// Package auth provides account registration, login with lockout, password
// hashing and cookie-bound session tokens for Cropwise.
//
// # Domain Types
//
// Accounts should be created with NewAccount, which normalizes and validates
// the username and email. Repository implementations receive pre-validated
// accounts.
//
// # Lockout
//
// Five consecutive failed logins lock an account for two hours. A lock that
// has expired is cleared on the next failure and the count restarts at one.
// Repositories apply NextLockoutState atomically.
//
// # Services
//
//   - Service - signup, login, profile reads and updates
//   - TokenService - HS256 session tokens
//   - SessionBinder - the auth-token cookie and request resolution
//
// Services are created with New* constructors that validate dependencies.
package auth
