// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

// Package postgres implements auth.AccountRepository on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/cropwise/cropwise/internal/auth"
	"github.com/cropwise/cropwise/internal/store"
)

// Unique index names from the accounts migration.
const (
	emailIndex    = "accounts_email_lower_idx"
	usernameIndex = "accounts_username_lower_idx"
)

const accountColumns = `id, first_name, last_name, username, email, password_hash,
	email_verified, failed_attempts, locked_until,
	phone, country_code, city, profile_image, created_at, updated_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool store.Querier
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool store.Querier) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create stores a new account. A unique violation is reported as a
// CodeDuplicate error naming the colliding field.
func (r *AccountRepository) Create(ctx context.Context, a *auth.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		a.ID.String(),
		a.FirstName,
		a.LastName,
		a.Username,
		a.Email,
		a.PasswordHash,
		a.EmailVerified,
		a.FailedAttempts,
		a.LockedUntil,
		a.Profile.Phone,
		a.Profile.CountryCode,
		a.Profile.City,
		a.Profile.ProfileImage,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return dup
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("username", a.Username).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID without its password hash.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id.String())
	a, err := r.get(row, "id", id.String())
	if err != nil {
		return nil, err
	}
	return a.WithoutSecret(), nil
}

// GetByEmail retrieves an account by email (case-insensitive).
func (r *AccountRepository) GetByEmail(ctx context.Context, email string, includeSecret bool) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = LOWER($1)`, email)
	a, err := r.get(row, "email", email)
	if err != nil {
		return nil, err
	}
	if !includeSecret {
		return a.WithoutSecret(), nil
	}
	return a, nil
}

// GetByUsername retrieves an account by username (case-insensitive).
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE LOWER(username) = LOWER($1)`, username)
	a, err := r.get(row, "username", username)
	if err != nil {
		return nil, err
	}
	return a.WithoutSecret(), nil
}

func (r *AccountRepository) get(row pgx.Row, key, value string) (*auth.Account, error) {
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeAccountNotFound).With(key, value).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by "+key).
			With(key, value).
			Wrap(err)
	}
	return a, nil
}

// recordFailureSQL applies auth.NextLockoutState in one statement.
// $1 id, $2 now, $3 threshold, $4 lock expiry.
const recordFailureSQL = `
	UPDATE accounts SET
		failed_attempts = CASE
			WHEN locked_until IS NOT NULL AND locked_until < $2 THEN 1
			ELSE failed_attempts + 1
		END,
		locked_until = CASE
			WHEN locked_until IS NOT NULL AND locked_until < $2 THEN NULL
			WHEN failed_attempts + 1 >= $3 AND (locked_until IS NULL OR locked_until <= $2) THEN $4::timestamptz
			ELSE locked_until
		END,
		updated_at = $2
	WHERE id = $1
	RETURNING failed_attempts, locked_until`

// RecordFailedAttempt increments the failure counter atomically, locking the
// account when the threshold is reached.
func (r *AccountRepository) RecordFailedAttempt(ctx context.Context, id ulid.ULID, now time.Time) (int, *time.Time, error) {
	var (
		attempts    int
		lockedUntil *time.Time
	)
	err := r.pool.QueryRow(ctx, recordFailureSQL,
		id.String(), now, auth.LockoutThreshold, now.Add(auth.LockoutDuration),
	).Scan(&attempts, &lockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, oops.Code(auth.CodeAccountNotFound).With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return 0, nil, oops.Code("ACCOUNT_RECORD_FAILURE_FAILED").
			With("operation", "record failed attempt").
			With("id", id.String()).
			Wrap(err)
	}
	return attempts, lockedUntil, nil
}

// ResetAttempts clears the failure counter and any lock.
func (r *AccountRepository) ResetAttempts(ctx context.Context, id ulid.ULID) error {
	return r.exec(ctx, "reset attempts", id, `
		UPDATE accounts SET failed_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`, id.String())
}

// UpdatePassword replaces the stored hash.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return r.exec(ctx, "update password", id, `
		UPDATE accounts SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
	`, id.String(), passwordHash)
}

// UpdateProfile persists the editable fields of a.
func (r *AccountRepository) UpdateProfile(ctx context.Context, a *auth.Account) error {
	return r.exec(ctx, "update profile", a.ID, `
		UPDATE accounts SET
			first_name = $2,
			last_name = $3,
			username = $4,
			email = $5,
			phone = $6,
			country_code = $7,
			city = $8,
			profile_image = $9,
			updated_at = $10
		WHERE id = $1
	`,
		a.ID.String(),
		a.FirstName,
		a.LastName,
		a.Username,
		a.Email,
		a.Profile.Phone,
		a.Profile.CountryCode,
		a.Profile.City,
		a.Profile.ProfileImage,
		a.UpdatedAt,
	)
}

func (r *AccountRepository) exec(ctx context.Context, operation string, id ulid.ULID, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return dup
		}
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", operation).
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code(auth.CodeAccountNotFound).With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// duplicateError maps a unique violation to auth.DuplicateError, or returns
// nil for any other error.
func duplicateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case emailIndex:
		return auth.DuplicateError(auth.FieldEmail)
	case usernameIndex:
		return auth.DuplicateError(auth.FieldUsername)
	default:
		return oops.Code(auth.CodeDuplicate).
			With("constraint", pgErr.ConstraintName).
			Errorf("account already exists")
	}
}

func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		a     auth.Account
		idStr string
	)
	err := row.Scan(
		&idStr,
		&a.FirstName,
		&a.LastName,
		&a.Username,
		&a.Email,
		&a.PasswordHash,
		&a.EmailVerified,
		&a.FailedAttempts,
		&a.LockedUntil,
		&a.Profile.Phone,
		&a.Profile.CountryCode,
		&a.Profile.City,
		&a.Profile.ProfileImage,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	return &a, nil
}

var _ auth.AccountRepository = (*AccountRepository)(nil)
