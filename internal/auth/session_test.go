// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cropwise/cropwise/internal/auth"
)

type lookupFunc func(ctx context.Context, id ulid.ULID) (*auth.Account, error)

func (f lookupFunc) Account(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	return f(ctx, id)
}

func newBinder(t *testing.T, secure bool, accounts map[ulid.ULID]*auth.Account) *auth.SessionBinder {
	t.Helper()
	b, err := auth.NewSessionBinder(auth.NewTokenService("test-secret", ""),
		lookupFunc(func(_ context.Context, id ulid.ULID) (*auth.Account, error) {
			if a, ok := accounts[id]; ok {
				return a, nil
			}
			return nil, auth.ErrNotFound
		}),
		auth.SessionConfig{Secure: secure})
	require.NoError(t, err)
	return b
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie set", auth.CookieName)
	return nil
}

func TestSessionBinder_Bind(t *testing.T) {
	acct := &auth.Account{ID: ulid.Make(), Email: "asha@example.com", Username: "asha"}

	tests := []struct {
		name     string
		remember bool
		secure   bool
		maxAge   int
	}{
		{"standard session", false, false, int((24 * time.Hour).Seconds())},
		{"remember me", true, false, int((30 * 24 * time.Hour).Seconds())},
		{"production cookie is secure", false, true, int((24 * time.Hour).Seconds())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBinder(t, tt.secure, nil)
			rec := httptest.NewRecorder()

			token, err := b.Bind(rec, acct, tt.remember)
			require.NoError(t, err)

			c := sessionCookie(t, rec)
			assert.Equal(t, token, c.Value)
			assert.Equal(t, tt.maxAge, c.MaxAge)
			assert.True(t, c.HttpOnly)
			assert.Equal(t, tt.secure, c.Secure)
			assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
			assert.Equal(t, "/", c.Path)
		})
	}
}

func TestSessionBinder_TokenLifetimeMatchesCookie(t *testing.T) {
	tokens := auth.NewTokenService("test-secret", "")
	b, err := auth.NewSessionBinder(tokens, lookupFunc(nil), auth.SessionConfig{})
	require.NoError(t, err)

	for _, remember := range []bool{false, true} {
		rec := httptest.NewRecorder()
		token, err := b.Bind(rec, &auth.Account{ID: ulid.Make()}, remember)
		require.NoError(t, err)

		claims, err := tokens.Verify(token)
		require.NoError(t, err)
		lifetime := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
		assert.Equal(t, b.TTL(remember), lifetime)
		assert.Equal(t, int(lifetime.Seconds()), sessionCookie(t, rec).MaxAge)
	}
}

func TestSessionBinder_Clear(t *testing.T) {
	b := newBinder(t, false, nil)
	rec := httptest.NewRecorder()
	b.Clear(rec)

	c := sessionCookie(t, rec)
	assert.Empty(t, c.Value)
	assert.Negative(t, c.MaxAge)
}

func TestSessionBinder_Resolve(t *testing.T) {
	acct := &auth.Account{ID: ulid.Make(), Email: "asha@example.com", Username: "asha"}
	b := newBinder(t, false, map[ulid.ULID]*auth.Account{acct.ID: acct})

	rec := httptest.NewRecorder()
	token, err := b.Bind(rec, acct, false)
	require.NoError(t, err)

	t.Run("from cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
		got := b.Resolve(r)
		require.NotNil(t, got)
		assert.Equal(t, acct.ID, got.ID)
	})

	t.Run("from bearer header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		require.NotNil(t, b.Resolve(r))
	})

	t.Run("no token", func(t *testing.T) {
		assert.Nil(t, b.Resolve(httptest.NewRequest(http.MethodGet, "/", nil)))
	})

	t.Run("tampered token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token + "x"})
		assert.Nil(t, b.Resolve(r))
	})

	t.Run("account deleted", func(t *testing.T) {
		ghost := &auth.Account{ID: ulid.Make()}
		ghostToken, err := b.Bind(httptest.NewRecorder(), ghost, false)
		require.NoError(t, err)

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: auth.CookieName, Value: ghostToken})
		assert.Nil(t, b.Resolve(r))
	})
}

func TestNewSessionBinder_NilDependencies(t *testing.T) {
	_, err := auth.NewSessionBinder(nil, lookupFunc(nil), auth.SessionConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token service is required")

	_, err = auth.NewSessionBinder(auth.NewTokenService("", ""), nil, auth.SessionConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account lookup is required")
}
