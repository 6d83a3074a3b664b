// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cropwise/cropwise/internal/auth"
	"github.com/cropwise/cropwise/internal/auth/memory"
	"github.com/cropwise/cropwise/internal/timebox"
	"github.com/cropwise/cropwise/pkg/errutil"
)

const testPassword = "harvest2026"

// fakeClock is a settable clock shared by the service under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// faultyRepo wraps a repository and lets tests inject failures.
type faultyRepo struct {
	*memory.AccountRepository
	recordErr error
	block     chan struct{}
}

func (r *faultyRepo) RecordFailedAttempt(ctx context.Context, id ulid.ULID, now time.Time) (int, *time.Time, error) {
	if r.recordErr != nil {
		return 0, nil, r.recordErr
	}
	return r.AccountRepository.RecordFailedAttempt(ctx, id, now)
}

func (r *faultyRepo) GetByEmail(ctx context.Context, email string, includeSecret bool) (*auth.Account, error) {
	if r.block != nil {
		<-r.block
	}
	return r.AccountRepository.GetByEmail(ctx, email, includeSecret)
}

type fixture struct {
	svc    *auth.Service
	repo   *faultyRepo
	clock  *fakeClock
	logs   *bytes.Buffer
	hasher *auth.BcryptHasher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:   &faultyRepo{AccountRepository: memory.NewAccountRepository()},
		clock:  &fakeClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)},
		logs:   &bytes.Buffer{},
		hasher: auth.NewBcryptHasher(bcrypt.MinCost),
	}
	svc, err := auth.NewServiceWithLogger(f.repo, f.hasher,
		auth.ServiceConfig{StoreTimeout: time.Second, Clock: f.clock.Now},
		slog.New(slog.NewTextHandler(f.logs, nil)))
	require.NoError(t, err)
	f.svc = svc
	return f
}

func validSignup() auth.SignupInput {
	return auth.SignupInput{
		FirstName:       "Asha",
		LastName:        "Rao",
		Username:        "asha",
		Email:           "asha@example.com",
		Password:        testPassword,
		ConfirmPassword: testPassword,
		AcceptTerms:     true,
	}
}

func (f *fixture) signup(t *testing.T) *auth.Account {
	t.Helper()
	acct, err := f.svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)
	return acct
}

type countingHasher struct {
	*auth.BcryptHasher
	hashes   atomic.Int32
	verifies atomic.Int32
}

func (h *countingHasher) Hash(password string) (string, error) {
	h.hashes.Add(1)
	return h.BcryptHasher.Hash(password)
}

func (h *countingHasher) Verify(password, digest string) (bool, error) {
	h.verifies.Add(1)
	return h.BcryptHasher.Verify(password, digest)
}

func TestService_UnknownEmailCostsOneVerify(t *testing.T) {
	hasher := &countingHasher{BcryptHasher: auth.NewBcryptHasher(bcrypt.MinCost)}
	svc, err := auth.NewService(memory.NewAccountRepository(), hasher, auth.ServiceConfig{})
	require.NoError(t, err)
	require.Equal(t, int32(1), hasher.hashes.Load(), "dummy digest is prepared at construction")

	for range 2 {
		_, err := svc.Login(context.Background(), "nobody@example.com", testPassword)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
	}
	assert.Equal(t, int32(1), hasher.hashes.Load())
	assert.Equal(t, int32(2), hasher.verifies.Load())
}

func TestNewService_NilDependencies(t *testing.T) {
	repo := memory.NewAccountRepository()
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)

	tests := []struct {
		name        string
		accounts    auth.AccountRepository
		hasher      auth.PasswordHasher
		logger      *slog.Logger
		expectError string
	}{
		{"nil accounts repository", nil, hasher, slog.Default(), "accounts repository is required"},
		{"nil password hasher", repo, nil, slog.Default(), "password hasher is required"},
		{"nil logger", repo, hasher, nil, "logger is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := auth.NewServiceWithLogger(tt.accounts, tt.hasher, auth.ServiceConfig{}, tt.logger)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestService_Signup(t *testing.T) {
	t.Run("creates verified account without exposing hash", func(t *testing.T) {
		f := newFixture(t)
		acct := f.signup(t)

		assert.Empty(t, acct.PasswordHash)
		assert.True(t, acct.EmailVerified)

		stored, err := f.repo.GetByEmail(context.Background(), "asha@example.com", true)
		require.NoError(t, err)
		assert.NotEqual(t, testPassword, stored.PasswordHash)
		ok, err := f.hasher.Verify(testPassword, stored.PasswordHash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("duplicate email", func(t *testing.T) {
		f := newFixture(t)
		f.signup(t)

		in := validSignup()
		in.Username = "someone_else"
		in.Email = "ASHA@example.com"
		_, err := f.svc.Signup(context.Background(), in)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeDuplicate)
		errutil.AssertErrorContext(t, err, "field", auth.FieldEmail)
		assert.Contains(t, err.Error(), "An account with this email already exists")
	})

	t.Run("duplicate username", func(t *testing.T) {
		f := newFixture(t)
		f.signup(t)

		in := validSignup()
		in.Email = "other@example.com"
		in.Username = "ASHA"
		_, err := f.svc.Signup(context.Background(), in)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeDuplicate)
		errutil.AssertErrorContext(t, err, "field", auth.FieldUsername)
	})

	t.Run("email is reported before username", func(t *testing.T) {
		f := newFixture(t)
		f.signup(t)

		_, err := f.svc.Signup(context.Background(), validSignup())
		require.Error(t, err)
		errutil.AssertErrorContext(t, err, "field", auth.FieldEmail)
	})

	invalid := []struct {
		name   string
		mutate func(*auth.SignupInput)
		code   string
	}{
		{"short password", func(in *auth.SignupInput) { in.Password, in.ConfirmPassword = "short", "short" }, auth.CodeInvalidPassword},
		{"password longer than bcrypt accepts", func(in *auth.SignupInput) {
			in.Password = strings.Repeat("a", 80)
			in.ConfirmPassword = in.Password
		}, auth.CodeInvalidPassword},
		{"mismatched confirmation", func(in *auth.SignupInput) { in.ConfirmPassword = "different1" }, auth.CodeInvalidPassword},
		{"terms not accepted", func(in *auth.SignupInput) { in.AcceptTerms = false }, auth.CodeInvalidProfile},
		{"bad username", func(in *auth.SignupInput) { in.Username = "a b" }, auth.CodeInvalidUsername},
		{"bad email", func(in *auth.SignupInput) { in.Email = "nope" }, auth.CodeInvalidEmail},
		{"missing name", func(in *auth.SignupInput) { in.FirstName = " " }, auth.CodeInvalidName},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := validSignup()
			tt.mutate(&in)
			_, err := f.svc.Signup(context.Background(), in)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.code)

			_, err = f.repo.GetByEmail(context.Background(), in.Email, false)
			assert.ErrorIs(t, err, auth.ErrNotFound)
		})
	}
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		f := newFixture(t)
		created := f.signup(t)

		acct, err := f.svc.Login(ctx, " Asha@Example.com ", testPassword)
		require.NoError(t, err)
		assert.Equal(t, created.ID, acct.ID)
		assert.Empty(t, acct.PasswordHash)
	})

	t.Run("unknown email", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Login(ctx, "nobody@example.com", testPassword)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
	})

	t.Run("wrong password counts a failure", func(t *testing.T) {
		f := newFixture(t)
		f.signup(t)

		_, err := f.svc.Login(ctx, "asha@example.com", "wrong-password")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)

		stored, err := f.repo.GetByEmail(ctx, "asha@example.com", false)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.FailedAttempts)
	})

	t.Run("success clears failures", func(t *testing.T) {
		f := newFixture(t)
		f.signup(t)
		for i := 0; i < 3; i++ {
			_, _ = f.svc.Login(ctx, "asha@example.com", "wrong-password")
		}

		_, err := f.svc.Login(ctx, "asha@example.com", testPassword)
		require.NoError(t, err)

		stored, err := f.repo.GetByEmail(ctx, "asha@example.com", false)
		require.NoError(t, err)
		assert.Zero(t, stored.FailedAttempts)
		assert.Nil(t, stored.LockedUntil)
	})

	t.Run("record failure error is logged", func(t *testing.T) {
		f := newFixture(t)
		f.signup(t)
		f.repo.recordErr = errors.New("disk on fire")

		_, err := f.svc.Login(ctx, "asha@example.com", "wrong-password")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
		assert.Contains(t, f.logs.String(), "failed to record failed login attempt")
	})

	t.Run("store timeout", func(t *testing.T) {
		f := newFixture(t)
		f.signup(t)
		f.repo.block = make(chan struct{})
		defer close(f.repo.block)

		_, err := f.svc.Login(ctx, "asha@example.com", testPassword)
		require.Error(t, err)
		assert.True(t, timebox.IsTimeout(err))
	})

	t.Run("upgrades weak hash", func(t *testing.T) {
		f := newFixture(t)
		acct := f.signup(t)

		strong, err := auth.NewServiceWithLogger(f.repo, auth.NewBcryptHasher(bcrypt.MinCost+1),
			auth.ServiceConfig{Clock: f.clock.Now}, slog.New(slog.NewTextHandler(f.logs, nil)))
		require.NoError(t, err)

		_, err = strong.Login(ctx, "asha@example.com", testPassword)
		require.NoError(t, err)

		stored, err := f.repo.GetByEmail(ctx, acct.Email, true)
		require.NoError(t, err)
		cost, err := bcrypt.Cost([]byte(stored.PasswordHash))
		require.NoError(t, err)
		assert.Equal(t, bcrypt.MinCost+1, cost)
	})
}

func TestService_Lockout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signup(t)

	for i := 0; i < auth.LockoutThreshold; i++ {
		_, err := f.svc.Login(ctx, "asha@example.com", "wrong-password")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
	}

	stored, err := f.repo.GetByEmail(ctx, "asha@example.com", false)
	require.NoError(t, err)
	assert.Equal(t, auth.LockoutThreshold, stored.FailedAttempts)
	require.NotNil(t, stored.LockedUntil)
	assert.True(t, stored.LockedUntil.Equal(f.clock.Now().Add(auth.LockoutDuration)))
	assert.Contains(t, f.logs.String(), "account locked")

	// The correct password is refused while locked.
	_, err = f.svc.Login(ctx, "asha@example.com", testPassword)
	errutil.AssertErrorCode(t, err, auth.CodeAccountLocked)

	f.clock.Advance(auth.LockoutDuration - time.Minute)
	_, err = f.svc.Login(ctx, "asha@example.com", testPassword)
	errutil.AssertErrorCode(t, err, auth.CodeAccountLocked)

	// Once the lock lapses a failure restarts the count at one.
	f.clock.Advance(2 * time.Minute)
	_, err = f.svc.Login(ctx, "asha@example.com", "wrong-password")
	errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)

	stored, err = f.repo.GetByEmail(ctx, "asha@example.com", false)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.FailedAttempts)
	assert.Nil(t, stored.LockedUntil)

	_, err = f.svc.Login(ctx, "asha@example.com", testPassword)
	require.NoError(t, err)
}

func TestService_ConcurrentFailuresLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signup(t)

	var wg sync.WaitGroup
	for i := 0; i < 3*auth.LockoutThreshold; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Login(ctx, "asha@example.com", "wrong-password")
		}()
	}
	wg.Wait()

	stored, err := f.repo.GetByEmail(ctx, "asha@example.com", false)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stored.FailedAttempts, auth.LockoutThreshold)
	assert.True(t, stored.IsLockedAt(f.clock.Now()))
}

func TestService_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	acct := f.signup(t)

	other := validSignup()
	other.Username, other.Email = "ravi", "ravi@example.com"
	_, err := f.svc.Signup(ctx, other)
	require.NoError(t, err)

	t.Run("updates fields", func(t *testing.T) {
		city, phone := "Pune", "9876543210"
		updated, err := f.svc.UpdateProfile(ctx, acct.ID, auth.ProfileUpdate{City: &city, Phone: &phone})
		require.NoError(t, err)
		assert.Equal(t, "Pune", updated.Profile.City)

		got, err := f.svc.Account(ctx, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, "9876543210", got.Profile.Phone)
		assert.Empty(t, got.PasswordHash)
	})

	t.Run("keeping own username is allowed", func(t *testing.T) {
		same := "asha"
		_, err := f.svc.UpdateProfile(ctx, acct.ID, auth.ProfileUpdate{Username: &same})
		require.NoError(t, err)
	})

	t.Run("taken username", func(t *testing.T) {
		taken := "ravi"
		_, err := f.svc.UpdateProfile(ctx, acct.ID, auth.ProfileUpdate{Username: &taken})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeDuplicate)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := f.svc.UpdateProfile(ctx, ulid.Make(), auth.ProfileUpdate{})
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestService_Profile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct, err := f.svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	view, err := f.svc.Profile(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", view.FullName)
	assert.Equal(t, auth.DefaultCountryCode, view.CountryCode)
	assert.Equal(t, "asha", view.Username)

	_, err = f.svc.Profile(ctx, ulid.Make())
	require.ErrorIs(t, err, auth.ErrNotFound)
}
