// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cropwise/cropwise/internal/auth"
	"github.com/cropwise/cropwise/pkg/errutil"
)

var testIdentity = auth.Identity{
	UserID:   "01HZX8ZQ0000000000000000AB",
	Email:    "asha@example.com",
	Username: "asha",
}

func TestTokenService_RoundTrip(t *testing.T) {
	svc := auth.NewTokenService("test-secret", "")

	token, err := svc.Issue(testIdentity, time.Hour)
	require.NoError(t, err)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, testIdentity, claims.Identity)
	assert.Equal(t, testIdentity.UserID, claims.Subject)
	assert.Equal(t, auth.DefaultTokenIssuer, claims.Issuer)
	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestTokenService_FallbackSecret(t *testing.T) {
	svc := auth.NewTokenService("", "")
	assert.True(t, svc.UsesFallbackSecret())
	assert.False(t, auth.NewTokenService("x", "").UsesFallbackSecret())

	token, err := svc.Issue(testIdentity, time.Minute)
	require.NoError(t, err)

	explicit := auth.NewTokenService(auth.FallbackSecret, "")
	_, err = explicit.Verify(token)
	require.NoError(t, err)
}

func TestTokenService_Expired(t *testing.T) {
	issuedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := auth.NewTokenService("s", "").WithClock(func() time.Time { return issuedAt })

	token, err := svc.Issue(testIdentity, 24*time.Hour)
	require.NoError(t, err)

	later := svc.WithClock(func() time.Time { return issuedAt.Add(25 * time.Hour) })
	_, err = later.Verify(token)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeTokenExpired)
}

func TestTokenService_Rejects(t *testing.T) {
	svc := auth.NewTokenService("right", "")

	other, err := auth.NewTokenService("wrong", "").Issue(testIdentity, time.Hour)
	require.NoError(t, err)

	foreignIssuer, err := auth.NewTokenService("right", "someone-else").Issue(testIdentity, time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, auth.Claims{
		Identity: testIdentity,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    auth.DefaultTokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not.a.jwt",
		"wrong secret": other,
		"wrong issuer": foreignIssuer,
		"alg none":     none,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Verify(token)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, auth.CodeTokenInvalid)
		})
	}
}

func TestTokenService_IssueValidation(t *testing.T) {
	svc := auth.NewTokenService("s", "")

	_, err := svc.Issue(auth.Identity{}, time.Hour)
	require.Error(t, err)

	_, err = svc.Issue(testIdentity, 0)
	require.Error(t, err)
}
