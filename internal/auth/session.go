// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session cookie configuration.
const (
	CookieName         = "auth-token"
	SessionTTL         = 24 * time.Hour
	RememberSessionTTL = 30 * 24 * time.Hour
)

// SessionConfig configures a SessionBinder.
type SessionConfig struct {
	// TTL is the lifetime of a standard session. Defaults to SessionTTL.
	TTL time.Duration
	// RememberTTL is the lifetime of a remember-me session. Defaults to RememberSessionTTL.
	RememberTTL time.Duration
	// Secure marks the cookie Secure. Set in production.
	Secure bool
}

// AccountLookup loads an account by ID. *Service satisfies it.
type AccountLookup interface {
	Account(ctx context.Context, id ulid.ULID) (*Account, error)
}

// SessionBinder issues session tokens into cookies and resolves the current
// account from a request. Token lifetime always equals cookie lifetime.
type SessionBinder struct {
	tokens   *TokenService
	accounts AccountLookup
	cfg      SessionConfig
}

// NewSessionBinder creates a SessionBinder.
func NewSessionBinder(tokens *TokenService, accounts AccountLookup, cfg SessionConfig) (*SessionBinder, error) {
	if tokens == nil {
		return nil, oops.Code(CodeInternal).Errorf("token service is required")
	}
	if accounts == nil {
		return nil, oops.Code(CodeInternal).Errorf("account lookup is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = SessionTTL
	}
	if cfg.RememberTTL <= 0 {
		cfg.RememberTTL = RememberSessionTTL
	}
	return &SessionBinder{tokens: tokens, accounts: accounts, cfg: cfg}, nil
}

// TTL returns the session lifetime for the remember choice.
func (b *SessionBinder) TTL(remember bool) time.Duration {
	if remember {
		return b.cfg.RememberTTL
	}
	return b.cfg.TTL
}

// Bind issues a token for account and sets it as the session cookie.
// Returns the token so API clients can use it as a bearer credential.
func (b *SessionBinder) Bind(w http.ResponseWriter, account *Account, remember bool) (string, error) {
	ttl := b.TTL(remember)
	token, err := b.tokens.Issue(IdentityOf(account), ttl)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, b.cookie(token, int(ttl/time.Second)))
	return token, nil
}

// Clear expires the session cookie.
func (b *SessionBinder) Clear(w http.ResponseWriter) {
	http.SetCookie(w, b.cookie("", -1))
}

func (b *SessionBinder) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   b.cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// Resolve returns the account for the request's session, or nil when there is
// no token, the token fails verification, or the account no longer exists.
func (b *SessionBinder) Resolve(r *http.Request) *Account {
	token := TokenFromRequest(r)
	if token == "" {
		return nil
	}
	claims, err := b.tokens.Verify(token)
	if err != nil {
		return nil
	}
	id, err := ulid.Parse(claims.UserID)
	if err != nil {
		return nil
	}
	account, err := b.accounts.Account(r.Context(), id)
	if err != nil {
		return nil
	}
	return account
}

// TokenFromRequest returns the session cookie value, falling back to a
// bearer token in the Authorization header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	const prefix = "bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}
