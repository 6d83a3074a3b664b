// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cropwise/cropwise/internal/auth"
	"github.com/cropwise/cropwise/internal/observability"
)

// securityHeaders sets the browser hardening headers on every response.
// HSTS is only sent in production.
func securityHeaders(production bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if production {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs each request and records it in metrics under its route
// pattern.
func requestLogger(logger *slog.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			elapsed := time.Since(start)
			metrics.ObserveRequest(r.Method, route, strconv.Itoa(status), elapsed)

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", elapsed,
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

type accountKey struct{}

// withAccount resolves the session of every request. Handlers read the
// result with accountFrom.
func withAccount(sessions *auth.SessionBinder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if acct := sessions.Resolve(r); acct != nil {
				r = r.WithContext(context.WithValue(r.Context(), accountKey{}, acct))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireAccount rejects requests without a valid session with 401.
func requireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if accountFrom(r.Context()) == nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: msgUnauthorized})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func accountFrom(ctx context.Context) *auth.Account {
	acct, _ := ctx.Value(accountKey{}).(*auth.Account)
	return acct
}
