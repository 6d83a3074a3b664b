// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

// Package memory provides an in-process AccountRepository for tests and
// single-node development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/cropwise/cropwise/internal/auth"
)

// AccountRepository stores accounts in memory. Safe for concurrent use.
type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[ulid.ULID]*auth.Account
}

// NewAccountRepository creates an empty repository.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{accounts: make(map[ulid.ULID]*auth.Account)}
}

// Create stores a copy of account.
func (r *AccountRepository) Create(_ context.Context, account *auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUniqueLocked(account); err != nil {
		return err
	}
	c := *account
	r.accounts[account.ID] = &c
	return nil
}

// checkUniqueLocked reports an email clash before a username clash.
func (r *AccountRepository) checkUniqueLocked(account *auth.Account) error {
	for _, a := range r.accounts {
		if a.ID != account.ID && a.Email == auth.NormalizeEmail(account.Email) {
			return auth.DuplicateError(auth.FieldEmail)
		}
	}
	for _, a := range r.accounts {
		if a.ID != account.ID && a.Username == auth.NormalizeUsername(account.Username) {
			return auth.DuplicateError(auth.FieldUsername)
		}
	}
	return nil
}

// GetByID returns the account without its password hash.
func (r *AccountRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[id]
	if !ok {
		return nil, notFound("id", id.String())
	}
	return a.WithoutSecret(), nil
}

// GetByEmail returns the account with the given email.
func (r *AccountRepository) GetByEmail(_ context.Context, email string, includeSecret bool) (*auth.Account, error) {
	email = auth.NormalizeEmail(email)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.accounts {
		if a.Email == email {
			if includeSecret {
				return cloneAccount(a), nil
			}
			return a.WithoutSecret(), nil
		}
	}
	return nil, notFound("email", email)
}

// GetByUsername returns the account with the given username.
func (r *AccountRepository) GetByUsername(_ context.Context, username string) (*auth.Account, error) {
	username = auth.NormalizeUsername(username)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.accounts {
		if a.Username == username {
			return a.WithoutSecret(), nil
		}
	}
	return nil, notFound("username", username)
}

// RecordFailedAttempt applies auth.NextLockoutState under the write lock.
func (r *AccountRepository) RecordFailedAttempt(_ context.Context, id ulid.ULID, now time.Time) (int, *time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return 0, nil, notFound("id", id.String())
	}
	a.FailedAttempts, a.LockedUntil = auth.NextLockoutState(a.FailedAttempts, a.LockedUntil, now)
	a.UpdatedAt = now
	return a.FailedAttempts, copyTime(a.LockedUntil), nil
}

// ResetAttempts clears the failure counter and lock.
func (r *AccountRepository) ResetAttempts(_ context.Context, id ulid.ULID) error {
	return r.update(id, func(a *auth.Account) {
		a.FailedAttempts = 0
		a.LockedUntil = nil
	})
}

// UpdatePassword replaces the stored hash.
func (r *AccountRepository) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	return r.update(id, func(a *auth.Account) {
		a.PasswordHash = passwordHash
	})
}

// UpdateProfile stores the editable fields of account.
func (r *AccountRepository) UpdateProfile(_ context.Context, account *auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[account.ID]
	if !ok {
		return notFound("id", account.ID.String())
	}
	if err := r.checkUniqueLocked(account); err != nil {
		return err
	}
	a.FirstName = account.FirstName
	a.LastName = account.LastName
	a.Username = account.Username
	a.Email = account.Email
	a.Profile = account.Profile
	a.UpdatedAt = time.Now()
	return nil
}

func (r *AccountRepository) update(id ulid.ULID, fn func(*auth.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return notFound("id", id.String())
	}
	fn(a)
	a.UpdatedAt = time.Now()
	return nil
}

func notFound(key, value string) error {
	return oops.Code(auth.CodeAccountNotFound).With(key, value).Wrap(auth.ErrNotFound)
}

func cloneAccount(a *auth.Account) *auth.Account {
	c := *a
	c.LockedUntil = copyTime(a.LockedUntil)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

var _ auth.AccountRepository = (*AccountRepository)(nil)
