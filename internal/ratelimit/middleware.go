// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/cropwise/cropwise/pkg/errutil"
)

// ResetHeaderLayout formats X-RateLimit-Reset as an ISO-8601 UTC timestamp
// with millisecond precision.
const ResetHeaderLayout = "2006-01-02T15:04:05.000Z"

// Policy limits requests whose path matches Pattern. Patterns use glob
// syntax with '/' as separator: '*' matches within a segment, '**' across.
// When Methods is set only those request methods are counted.
type Policy struct {
	Name    string        `koanf:"name"`
	Pattern string        `koanf:"pattern"`
	Methods []string      `koanf:"methods"`
	Limit   int           `koanf:"limit"`
	Window  time.Duration `koanf:"window"`
	// Message is the error text returned on rejection.
	Message string `koanf:"message"`
}

// DefaultPolicies limits the login and signup endpoints.
func DefaultPolicies() []Policy {
	return []Policy{
		{
			Name:    "login",
			Pattern: "/api/auth/login",
			Methods: []string{http.MethodPost},
			Limit:   DefaultLimit,
			Window:  DefaultWindow,
			Message: "Too many login attempts. Please try again later.",
		},
		{
			Name:    "signup",
			Pattern: "/api/auth/signup",
			Methods: []string{http.MethodPost},
			Limit:   DefaultLimit,
			Window:  DefaultWindow,
			Message: "Too many signup attempts. Please try again later.",
		},
	}
}

type compiledPolicy struct {
	Policy
	matcher glob.Glob
}

// MiddlewareConfig configures Middleware.
type MiddlewareConfig struct {
	Policies []Policy
	// TrustProxy takes the client address from the first X-Forwarded-For hop.
	TrustProxy bool
	Logger     *slog.Logger
	// OnReject is called with the policy name for every rejected request.
	OnReject func(policy string)
}

// Middleware enforces policies on HTTP requests.
type Middleware struct {
	limiter    *Limiter
	policies   []compiledPolicy
	trustProxy bool
	logger     *slog.Logger
	onReject   func(string)
}

// NewMiddleware compiles the policy patterns.
func NewMiddleware(limiter *Limiter, cfg MiddlewareConfig) (*Middleware, error) {
	if limiter == nil {
		return nil, oops.Code("RATE_LIMIT_INVALID").Errorf("limiter is required")
	}
	m := &Middleware{
		limiter:    limiter,
		trustProxy: cfg.TrustProxy,
		logger:     cfg.Logger,
		onReject:   cfg.OnReject,
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	for _, p := range cfg.Policies {
		if p.Limit <= 0 || p.Window <= 0 {
			return nil, oops.Code("RATE_LIMIT_INVALID").
				With("policy", p.Name).
				Errorf("policy %q needs a positive limit and window", p.Name)
		}
		g, err := glob.Compile(p.Pattern, '/')
		if err != nil {
			return nil, oops.Code("RATE_LIMIT_INVALID").
				With("policy", p.Name).
				With("pattern", p.Pattern).
				Wrap(err)
		}
		if p.Message == "" {
			p.Message = "Too many requests. Please try again later."
		}
		methods := make([]string, 0, len(p.Methods))
		for _, method := range p.Methods {
			methods = append(methods, strings.ToUpper(strings.TrimSpace(method)))
		}
		p.Methods = methods
		m.policies = append(m.policies, compiledPolicy{Policy: p, matcher: g})
	}
	return m, nil
}

func (m *Middleware) match(method, path string) (compiledPolicy, bool) {
	for _, p := range m.policies {
		if len(p.Methods) > 0 && !slices.Contains(p.Methods, method) {
			continue
		}
		if p.matcher.Match(path) {
			return p, true
		}
	}
	return compiledPolicy{}, false
}

// Handler wraps next. Requests matching no policy pass through untouched.
// If the store fails the request is allowed and the failure logged.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		policy, ok := m.match(r.Method, r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := ClientIP(r, m.trustProxy) + ":" + r.URL.Path
		res, err := m.limiter.Check(r.Context(), key, policy.Limit, policy.Window)
		if err != nil {
			errutil.LogErrorContext(r.Context(), m.logger, "rate limit check failed, allowing request", err, "path", r.URL.Path)
			next.ServeHTTP(w, r)
			return
		}

		SetHeaders(w.Header(), res)
		if !res.Allowed {
			if m.onReject != nil {
				m.onReject(policy.Name)
			}
			m.logger.WarnContext(r.Context(), "rate limit exceeded",
				"policy", policy.Name,
				"key", key,
				"reset_at", res.ResetAt.UTC())
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(res.ResetAt)))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": policy.Message}) //nolint:errcheck // client gone
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetHeaders writes the X-RateLimit-* headers for res.
func SetHeaders(h http.Header, res Result) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", res.ResetAt.UTC().Format(ResetHeaderLayout))
}

func retryAfterSeconds(resetAt time.Time) int {
	secs := int(time.Until(resetAt).Round(time.Second).Seconds())
	return max(secs, 1)
}

// ClientIP returns the request's client address without port. With
// trustProxy the first X-Forwarded-For entry wins. Returns "unknown" when no
// address is available.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
