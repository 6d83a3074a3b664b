// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package auth

import (
	"time"
)

// Lockout configuration.
const (
	// LockoutThreshold is the number of consecutive failures that locks an account.
	LockoutThreshold = 5

	// LockoutDuration is how long an account stays locked.
	LockoutDuration = 2 * time.Hour
)

// IsLockedOut returns true if the lockout time is after now.
func IsLockedOut(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(now)
}

// LockoutRemaining returns how long the lock still holds, or zero.
func LockoutRemaining(lockedUntil *time.Time, now time.Time) time.Duration {
	if !IsLockedOut(lockedUntil, now) {
		return 0
	}
	return lockedUntil.Sub(now)
}

// NextLockoutState returns the counters to store after a failed login.
//
// A lock that has already expired restarts the count at 1 and is cleared.
// Otherwise the count is incremented and, when it reaches LockoutThreshold
// on an account that is not currently locked, the account is locked until
// now + LockoutDuration. Repository implementations must apply this as a
// single atomic read-modify-write.
func NextLockoutState(attempts int, lockedUntil *time.Time, now time.Time) (int, *time.Time) {
	if lockedUntil != nil && lockedUntil.Before(now) {
		return 1, nil
	}

	next := attempts + 1
	if next >= LockoutThreshold && !IsLockedOut(lockedUntil, now) {
		until := now.Add(LockoutDuration)
		return next, &until
	}
	return next, lockedUntil
}
