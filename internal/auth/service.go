// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cropwise/cropwise/internal/timebox"
	"github.com/cropwise/cropwise/pkg/errutil"
)

// DefaultStoreTimeout bounds each credential store call.
const DefaultStoreTimeout = 10 * time.Second

var tracer = otel.Tracer("cropwise/auth")

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// StoreTimeout is the ceiling for each repository call.
	// Defaults to DefaultStoreTimeout if zero; negative disables the ceiling.
	StoreTimeout time.Duration

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// SignupInput carries the fields submitted on signup.
type SignupInput struct {
	FirstName       string
	LastName        string
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
	AcceptTerms     bool
}

// ProfileUpdate carries editable account fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	FirstName    *string
	LastName     *string
	Username     *string
	Email        *string
	Phone        *string
	CountryCode  *string
	City         *string
	ProfileImage *string
}

// Service provides signup, login and account operations.
type Service struct {
	accounts     AccountRepository
	hasher       PasswordHasher
	logger       *slog.Logger
	storeTimeout time.Duration
	clock        func() time.Time
	dummyHash    string
}

// NewService creates a new Service using the default logger.
func NewService(accounts AccountRepository, hasher PasswordHasher, cfg ServiceConfig) (*Service, error) {
	return NewServiceWithLogger(accounts, hasher, cfg, slog.Default())
}

// NewServiceWithLogger creates a new Service that logs to logger.
func NewServiceWithLogger(accounts AccountRepository, hasher PasswordHasher, cfg ServiceConfig, logger *slog.Logger) (*Service, error) {
	if accounts == nil {
		return nil, oops.Code(CodeInternal).Errorf("accounts repository is required")
	}
	if hasher == nil {
		return nil, oops.Code(CodeInternal).Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Code(CodeInternal).Errorf("logger is required")
	}

	timeout := cfg.StoreTimeout
	if timeout == 0 {
		timeout = DefaultStoreTimeout
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Service{
		accounts:     accounts,
		hasher:       hasher,
		logger:       logger,
		storeTimeout: timeout,
		clock:        clock,
		dummyHash:    dummyPasswordHash(hasher),
	}, nil
}

// fallbackDummyHash is a well-formed bcrypt digest that matches no password.
// It is only used if hashing the dummy password fails.
//
//nolint:gosec // G101: not a credential
const fallbackDummyHash = "$2a$12$abcdefghijklmnopqrstuuabcdefghijklmnopqrstuvwxyz01234"

// dummyPasswordHash returns a digest produced with hasher so that verifying
// against it costs as much as verifying a real password.
func dummyPasswordHash(hasher PasswordHasher) string {
	h, err := hasher.Hash("cropwise-dummy-password")
	if err != nil {
		return fallbackDummyHash
	}
	return h
}

// Signup validates input, rejects duplicate email or username and stores a
// new verified account. The returned account never carries the password hash.
func (s *Service) Signup(ctx context.Context, in SignupInput) (acct *Account, err error) {
	ctx, span := tracer.Start(ctx, "auth.signup")
	defer func() { endSpan(span, err) }()

	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	if in.Password != in.ConfirmPassword {
		return nil, oops.Code(CodeInvalidPassword).
			With("field", "confirmPassword").
			Errorf("passwords don't match")
	}
	if !in.AcceptTerms {
		return nil, oops.Code(CodeInvalidProfile).
			With("field", "acceptTerms").
			Errorf("you must accept the terms and conditions")
	}

	// Validate the rest before paying for a hash.
	candidate, err := NewAccount(in.FirstName, in.LastName, in.Username, in.Email, "pending")
	if err != nil {
		return nil, err
	}

	if err := s.ensureAvailable(ctx, candidate.Email, candidate.Username, ulid.ULID{}); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code(CodeInternal).
			With("operation", "hash password").
			Wrap(err)
	}
	candidate.PasswordHash = hash

	err = timebox.Do(ctx, s.storeTimeout, "create account", func(ctx context.Context) error {
		return s.accounts.Create(ctx, candidate)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "account created",
		"account_id", candidate.ID.String(),
		"username", candidate.Username)
	return candidate.WithoutSecret(), nil
}

// Login authenticates by email and password.
//
// A locked account is rejected with CodeAccountLocked before the password is
// compared. Unknown emails and wrong passwords both yield
// CodeInvalidCredentials; unknown emails still pay for a hash comparison.
func (s *Service) Login(ctx context.Context, email, password string) (acct *Account, err error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer func() { endSpan(span, err) }()

	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
	}

	account, err := timebox.Run(ctx, s.storeTimeout, "get account by email", func(ctx context.Context) (*Account, error) {
		return s.accounts.GetByEmail(ctx, email, true)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			//nolint:errcheck // result is irrelevant; only the time spent matters
			s.hasher.Verify(password, s.dummyHash)
			return nil, oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
		}
		return nil, err
	}

	now := s.clock()
	if account.IsLockedAt(now) {
		span.SetAttributes(attribute.Bool("auth.locked", true))
		return nil, oops.Code(CodeAccountLocked).
			With("locked_until", account.LockedUntil.UTC().Format(time.RFC3339)).
			With("retry_after", LockoutRemaining(account.LockedUntil, now).Round(time.Second).String()).
			Errorf("account is temporarily locked due to too many failed login attempts")
	}

	valid, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		return nil, oops.Code(CodeInternal).
			With("operation", "verify password").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	if !valid {
		s.recordFailure(ctx, account.ID, now)
		return nil, oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
	}

	if account.FailedAttempts > 0 || account.LockedUntil != nil {
		err := timebox.Do(ctx, s.storeTimeout, "reset attempts", func(ctx context.Context) error {
			return s.accounts.ResetAttempts(ctx, account.ID)
		})
		if err != nil {
			errutil.LogErrorContext(ctx, s.logger, "failed to reset login attempts", err, "account_id", account.ID.String())
		} else {
			account.FailedAttempts = 0
			account.LockedUntil = nil
		}
	}

	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		s.upgradeHash(ctx, account.ID, password)
	}

	return account.WithoutSecret(), nil
}

// recordFailure increments the stored failure counter. Errors are logged;
// the caller still receives the invalid-credentials outcome.
func (s *Service) recordFailure(ctx context.Context, id ulid.ULID, now time.Time) {
	type counters struct {
		attempts    int
		lockedUntil *time.Time
	}
	c, err := timebox.Run(ctx, s.storeTimeout, "record failed attempt", func(ctx context.Context) (counters, error) {
		attempts, lockedUntil, err := s.accounts.RecordFailedAttempt(ctx, id, now)
		return counters{attempts, lockedUntil}, err
	})
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "failed to record failed login attempt", err, "account_id", id.String())
		return
	}
	if IsLockedOut(c.lockedUntil, now) && c.attempts == LockoutThreshold {
		s.logger.WarnContext(ctx, "account locked",
			"account_id", id.String(),
			"attempts", c.attempts,
			"locked_until", c.lockedUntil.UTC())
	}
}

func (s *Service) upgradeHash(ctx context.Context, id ulid.ULID, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "failed to rehash password", err, "account_id", id.String())
		return
	}
	err = timebox.Do(ctx, s.storeTimeout, "update password", func(ctx context.Context) error {
		return s.accounts.UpdatePassword(ctx, id, hash)
	})
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "failed to store upgraded password hash", err, "account_id", id.String())
	}
}

// Account loads an account by ID without its password hash.
func (s *Service) Account(ctx context.Context, id ulid.ULID) (*Account, error) {
	account, err := timebox.Run(ctx, s.storeTimeout, "get account by id", func(ctx context.Context) (*Account, error) {
		return s.accounts.GetByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return account.WithoutSecret(), nil
}

// ProfileView is the account as shown on the profile page.
type ProfileView struct {
	FullName     string    `json:"fullName"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	Phone        string    `json:"phone"`
	CountryCode  string    `json:"countryCode"`
	City         string    `json:"city"`
	ProfileImage string    `json:"profileImage"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ViewOf builds the profile view of a. A missing country code shows as
// DefaultCountryCode.
func ViewOf(a *Account) ProfileView {
	code := a.Profile.CountryCode
	if code == "" {
		code = DefaultCountryCode
	}
	return ProfileView{
		FullName:     a.FullName(),
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		Email:        a.Email,
		Username:     a.Username,
		Phone:        a.Profile.Phone,
		CountryCode:  code,
		City:         a.Profile.City,
		ProfileImage: a.Profile.ProfileImage,
		CreatedAt:    a.CreatedAt,
	}
}

// Profile returns the profile view of the account with id.
func (s *Service) Profile(ctx context.Context, id ulid.ULID) (ProfileView, error) {
	account, err := s.Account(ctx, id)
	if err != nil {
		return ProfileView{}, err
	}
	return ViewOf(account), nil
}

// UpdateProfile applies the non-nil fields of upd to the account.
// Changing the username or email re-checks uniqueness.
func (s *Service) UpdateProfile(ctx context.Context, id ulid.ULID, upd ProfileUpdate) (*Account, error) {
	account, err := s.Account(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.FirstName != nil {
		name := strings.TrimSpace(*upd.FirstName)
		if err := ValidateName("first name", name); err != nil {
			return nil, err
		}
		account.FirstName = name
	}
	if upd.LastName != nil {
		name := strings.TrimSpace(*upd.LastName)
		if err := ValidateName("last name", name); err != nil {
			return nil, err
		}
		account.LastName = name
	}

	newEmail, newUsername := "", ""
	if upd.Email != nil && NormalizeEmail(*upd.Email) != account.Email {
		newEmail = NormalizeEmail(*upd.Email)
		if err := ValidateEmail(newEmail); err != nil {
			return nil, err
		}
	}
	if upd.Username != nil && NormalizeUsername(*upd.Username) != account.Username {
		newUsername = NormalizeUsername(*upd.Username)
		if err := ValidateUsername(newUsername); err != nil {
			return nil, err
		}
	}
	if newEmail != "" || newUsername != "" {
		if err := s.ensureAvailable(ctx, newEmail, newUsername, account.ID); err != nil {
			return nil, err
		}
		if newEmail != "" {
			account.Email = newEmail
		}
		if newUsername != "" {
			account.Username = newUsername
		}
	}

	if upd.Phone != nil {
		account.Profile.Phone = strings.TrimSpace(*upd.Phone)
	}
	if upd.CountryCode != nil {
		account.Profile.CountryCode = strings.TrimSpace(*upd.CountryCode)
	}
	if upd.City != nil {
		account.Profile.City = strings.TrimSpace(*upd.City)
	}
	if upd.ProfileImage != nil {
		account.Profile.ProfileImage = strings.TrimSpace(*upd.ProfileImage)
	}
	account.UpdatedAt = s.clock()

	err = timebox.Do(ctx, s.storeTimeout, "update profile", func(ctx context.Context) error {
		return s.accounts.UpdateProfile(ctx, account)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// ensureAvailable checks email first, then username. Empty values are skipped.
// An account matching self is not a conflict.
func (s *Service) ensureAvailable(ctx context.Context, email, username string, self ulid.ULID) error {
	if email != "" {
		if err := s.checkFree(ctx, FieldEmail, self, func(ctx context.Context) (*Account, error) {
			return s.accounts.GetByEmail(ctx, email, false)
		}); err != nil {
			return err
		}
	}
	if username != "" {
		if err := s.checkFree(ctx, FieldUsername, self, func(ctx context.Context) (*Account, error) {
			return s.accounts.GetByUsername(ctx, username)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) checkFree(ctx context.Context, field string, self ulid.ULID, lookup func(context.Context) (*Account, error)) error {
	existing, err := timebox.Run(ctx, s.storeTimeout, "check "+field, lookup)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID == self:
		return nil
	default:
		return DuplicateError(field)
	}
}

// DuplicateError builds the CodeDuplicate error reported for field.
func DuplicateError(field string) error {
	msg := "This " + field + " is already registered"
	switch field {
	case FieldEmail:
		msg = "An account with this email already exists"
	case FieldUsername:
		msg = "This username is already taken"
	}
	return oops.Code(CodeDuplicate).With("field", field).Errorf("%s", msg)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
