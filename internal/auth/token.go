// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// Token configuration.
const (
	// FallbackSecret signs tokens when no secret is configured.
	// It is only acceptable outside production.
	FallbackSecret = "fallback-secret-key"

	// DefaultTokenIssuer is the "iss" claim of issued tokens.
	DefaultTokenIssuer = "cropwise"
)

// Identity is the payload carried by a session token.
type Identity struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// IdentityOf builds the token payload for an account.
func IdentityOf(a *Account) Identity {
	return Identity{
		UserID:   a.ID.String(),
		Email:    a.Email,
		Username: a.Username,
	}
}

// Claims are the JWT claims of a session token.
type Claims struct {
	Identity
	jwt.RegisteredClaims
}

// TokenService signs and verifies session tokens with a symmetric secret.
// It holds no mutable state and is safe for concurrent use.
type TokenService struct {
	secret   []byte
	issuer   string
	fallback bool
	now      func() time.Time
}

// NewTokenService creates a TokenService. An empty secret selects FallbackSecret.
func NewTokenService(secret, issuer string) *TokenService {
	s := &TokenService{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
	if secret == "" {
		s.secret = []byte(FallbackSecret)
		s.fallback = true
	}
	if issuer == "" {
		s.issuer = DefaultTokenIssuer
	}
	return s
}

// WithClock returns a copy of the service that reads time from now.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	c := *s
	c.now = now
	return &c
}

// UsesFallbackSecret reports whether tokens are signed with FallbackSecret.
func (s *TokenService) UsesFallbackSecret() bool {
	return s.fallback
}

// Issue signs a token for identity that expires after ttl.
func (s *TokenService) Issue(identity Identity, ttl time.Duration) (string, error) {
	if identity.UserID == "" {
		return "", oops.Code(CodeTokenInvalid).Errorf("token subject cannot be empty")
	}
	if ttl <= 0 {
		return "", oops.Code(CodeTokenInvalid).With("ttl", ttl).Errorf("token ttl must be positive")
	}

	now := s.now()
	claims := Claims{
		Identity: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// Verify parses a token and checks its signature, issuer and expiry.
// Returns a CodeTokenExpired error for expired tokens and CodeTokenInvalid
// for anything else.
func (s *TokenService) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, oops.Code(CodeTokenInvalid).Errorf("token cannot be empty")
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code(CodeTokenExpired).Wrap(err)
		}
		return nil, oops.Code(CodeTokenInvalid).Wrap(err)
	}
	if !parsed.Valid || claims.UserID == "" {
		return nil, oops.Code(CodeTokenInvalid).Errorf("token claims are invalid")
	}
	return claims, nil
}
