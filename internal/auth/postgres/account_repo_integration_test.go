// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cropwise/cropwise/internal/auth"
	"github.com/cropwise/cropwise/internal/auth/postgres"
	"github.com/cropwise/cropwise/pkg/errutil"
)

func createAccount(t *testing.T, repo *postgres.AccountRepository, username, email string) *auth.Account {
	t.Helper()
	ctx := context.Background()
	a, err := auth.NewAccount("Test", "User", username, email, "$2a$04$placeholder")
	require.NoError(t, err)
	a.CreatedAt = a.CreatedAt.UTC().Truncate(time.Microsecond)
	a.UpdatedAt = a.CreatedAt
	require.NoError(t, repo.Create(ctx, a))
	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, a.ID.String())
	})
	return a
}

func TestAccountRepository_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewAccountRepository(testPool)
	a := createAccount(t, repo, "lookup_user", "lookup@example.com")

	byEmail, err := repo.GetByEmail(ctx, "LOOKUP@example.com", true)
	require.NoError(t, err)
	assert.Equal(t, a.ID, byEmail.ID)
	assert.Equal(t, a.PasswordHash, byEmail.PasswordHash)

	byName, err := repo.GetByUsername(ctx, "Lookup_User")
	require.NoError(t, err)
	assert.Empty(t, byName.PasswordHash)

	byID, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, byID.EmailVerified)
	assert.Empty(t, byID.PasswordHash)
}

func TestAccountRepository_CreateDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewAccountRepository(testPool)
	createAccount(t, repo, "dup_user", "dup@example.com")

	sameEmail, err := auth.NewAccount("A", "B", "dup_other", "dup@example.com", "h")
	require.NoError(t, err)
	err = repo.Create(ctx, sameEmail)
	errutil.AssertErrorCode(t, err, auth.CodeDuplicate)
	errutil.AssertErrorContext(t, err, "field", auth.FieldEmail)

	sameName, err := auth.NewAccount("A", "B", "dup_user", "dup_other@example.com", "h")
	require.NoError(t, err)
	err = repo.Create(ctx, sameName)
	errutil.AssertErrorCode(t, err, auth.CodeDuplicate)
	errutil.AssertErrorContext(t, err, "field", auth.FieldUsername)
}

func TestAccountRepository_LockoutLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewAccountRepository(testPool)
	a := createAccount(t, repo, "lock_user", "lock@example.com")
	now := time.Now().UTC().Truncate(time.Microsecond)

	for i := 1; i < auth.LockoutThreshold; i++ {
		attempts, lockedUntil, err := repo.RecordFailedAttempt(ctx, a.ID, now)
		require.NoError(t, err)
		assert.Equal(t, i, attempts)
		assert.Nil(t, lockedUntil)
	}

	attempts, lockedUntil, err := repo.RecordFailedAttempt(ctx, a.ID, now)
	require.NoError(t, err)
	assert.Equal(t, auth.LockoutThreshold, attempts)
	require.NotNil(t, lockedUntil)
	assert.WithinDuration(t, now.Add(auth.LockoutDuration), *lockedUntil, time.Millisecond)

	// A failure while locked keeps the original expiry.
	_, again, err := repo.RecordFailedAttempt(ctx, a.ID, now.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.WithinDuration(t, *lockedUntil, *again, time.Millisecond)

	// After expiry the count restarts at one.
	attempts, lockedUntil, err = repo.RecordFailedAttempt(ctx, a.ID, now.Add(auth.LockoutDuration+time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Nil(t, lockedUntil)

	require.NoError(t, repo.ResetAttempts(ctx, a.ID))
	stored, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.FailedAttempts)
	assert.Nil(t, stored.LockedUntil)
}

func TestAccountRepository_ConcurrentFailures(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewAccountRepository(testPool)
	a := createAccount(t, repo, "race_user", "race@example.com")
	now := time.Now().UTC()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := repo.RecordFailedAttempt(ctx, a.ID, now)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, stored.FailedAttempts)
	assert.True(t, stored.IsLockedAt(now))
}

func TestAccountRepository_UpdateProfileAndPassword(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewAccountRepository(testPool)
	a := createAccount(t, repo, "profile_user", "profile@example.com")

	a.Profile.City = "Nashik"
	a.Profile.Phone = "9999999999"
	a.UpdatedAt = time.Now().UTC()
	require.NoError(t, repo.UpdateProfile(ctx, a))
	require.NoError(t, repo.UpdatePassword(ctx, a.ID, "$2a$04$newhash"))

	stored, err := repo.GetByEmail(ctx, a.Email, true)
	require.NoError(t, err)
	assert.Equal(t, "Nashik", stored.Profile.City)
	assert.Equal(t, "$2a$04$newhash", stored.PasswordHash)
}
