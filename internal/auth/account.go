// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package auth

import (
	"context"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Field constraints for accounts.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MaxNameLength     = 50
	MinPasswordLength = 8

	// MaxPasswordLength is the longest input bcrypt accepts, in bytes.
	MaxPasswordLength = 72

	// DefaultCountryCode is shown in the profile when none was stored.
	DefaultCountryCode = "+91"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	emailRegex    = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)
)

// Account represents a registered user.
type Account struct {
	ID             ulid.ULID
	FirstName      string
	LastName       string
	Username       string
	Email          string
	PasswordHash   string
	EmailVerified  bool
	FailedAttempts int
	LockedUntil    *time.Time
	Profile        Profile
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Profile holds the optional contact details a user can edit.
type Profile struct {
	Phone        string
	CountryCode  string
	City         string
	ProfileImage string
}

// NewAccount creates a validated Account. Username and email are normalized
// to lower case; the account is marked verified since signup has no
// confirmation loop.
func NewAccount(firstName, lastName, username, email, passwordHash string) (*Account, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	username = NormalizeUsername(username)
	email = NormalizeEmail(email)

	if err := ValidateName("first name", firstName); err != nil {
		return nil, err
	}
	if err := ValidateName("last name", lastName); err != nil {
		return nil, err
	}
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code(CodeInvalidPassword).Errorf("password hash cannot be empty")
	}

	now := time.Now()
	return &Account{
		ID:            ulid.Make(),
		FirstName:     firstName,
		LastName:      lastName,
		Username:      username,
		Email:         email,
		PasswordHash:  passwordHash,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// IsLocked returns true if the account is currently locked out.
func (a *Account) IsLocked() bool {
	return a.IsLockedAt(time.Now())
}

// IsLockedAt returns true if the account would be locked at t.
func (a *Account) IsLockedAt(t time.Time) bool {
	return IsLockedOut(a.LockedUntil, t)
}

// FullName joins the first and last name, skipping empty parts.
func (a *Account) FullName() string {
	return strings.TrimSpace(strings.Join([]string{a.FirstName, a.LastName}, " "))
}

// WithoutSecret returns a copy of the account with the password hash removed.
func (a *Account) WithoutSecret() *Account {
	c := *a
	c.PasswordHash = ""
	return &c
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeUsername trims and lower-cases a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidateName checks a first or last name.
func ValidateName(field, name string) error {
	if name == "" {
		return oops.Code(CodeInvalidName).With("field", field).Errorf("%s is required", field)
	}
	if len(name) > MaxNameLength {
		return oops.Code(CodeInvalidName).
			With("field", field).
			With("max", MaxNameLength).
			Errorf("%s cannot exceed %d characters", field, MaxNameLength)
	}
	return nil
}

// ValidateUsername validates a username against rules.
// Username requirements:
// - Length: MinUsernameLength to MaxUsernameLength characters
// - Only letters, numbers and underscores
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code(CodeInvalidUsername).Errorf("username is required")
	}
	if len(username) < MinUsernameLength {
		return oops.Code(CodeInvalidUsername).
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code(CodeInvalidUsername).
			With("max", MaxUsernameLength).
			Errorf("username cannot exceed %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code(CodeInvalidUsername).
			Errorf("username can only contain letters, numbers, and underscores")
	}
	return nil
}

// ValidateEmail validates an email address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code(CodeInvalidEmail).Errorf("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil || !emailRegex.MatchString(email) {
		return oops.Code(CodeInvalidEmail).With("email", email).Errorf("please enter a valid email")
	}
	return nil
}

// ValidatePassword checks the password length policy.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return oops.Code(CodeInvalidPassword).
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return oops.Code(CodeInvalidPassword).
			With("max", MaxPasswordLength).
			Errorf("password cannot exceed %d bytes", MaxPasswordLength)
	}
	return nil
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// Create stores a new account. Returns a CodeDuplicate error with a
	// "field" context value when the email or username is taken.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID. The password hash is never loaded.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmail retrieves an account by email (case-insensitive).
	// The password hash is only populated when includeSecret is true.
	GetByEmail(ctx context.Context, email string, includeSecret bool) (*Account, error)

	// GetByUsername retrieves an account by username (case-insensitive).
	GetByUsername(ctx context.Context, username string) (*Account, error)

	// RecordFailedAttempt atomically applies NextLockoutState to the stored
	// counters and returns the new values.
	RecordFailedAttempt(ctx context.Context, id ulid.ULID, now time.Time) (attempts int, lockedUntil *time.Time, err error)

	// ResetAttempts clears the failure counter and any lock.
	ResetAttempts(ctx context.Context, id ulid.ULID) error

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// UpdateProfile persists name, username, email and profile fields.
	UpdateProfile(ctx context.Context, account *Account) error
}
