// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

// Package httpapi serves the cropwise JSON API.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/cropwise/cropwise/internal/auth"
	"github.com/cropwise/cropwise/internal/history"
	"github.com/cropwise/cropwise/internal/observability"
	"github.com/cropwise/cropwise/internal/ratelimit"
	"github.com/cropwise/cropwise/internal/share"
)

// Deps are the collaborators of the API.
type Deps struct {
	Auth     *auth.Service
	Sessions *auth.SessionBinder
	Shares   *share.Service
	History  *history.Service

	// RateLimit is optional; nil disables request throttling.
	RateLimit *ratelimit.Middleware
	// Metrics is optional.
	Metrics *observability.Metrics
	Logger  *slog.Logger

	// Production enables HSTS.
	Production bool
}

type api struct {
	Deps
}

// NewRouter builds the HTTP handler of the API.
func NewRouter(deps Deps) (http.Handler, error) {
	switch {
	case deps.Auth == nil:
		return nil, oops.Errorf("auth service is required")
	case deps.Sessions == nil:
		return nil, oops.Errorf("session binder is required")
	case deps.Shares == nil:
		return nil, oops.Errorf("share service is required")
	case deps.History == nil:
		return nil, oops.Errorf("history service is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	a := &api{Deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(deps.Logger, deps.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders(deps.Production))
	if deps.RateLimit != nil {
		r.Use(deps.RateLimit.Handler)
	}
	r.Use(withAccount(deps.Sessions))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", a.login)
			r.Post("/signup", a.signup)
			r.Post("/logout", a.logout)
			r.With(requireAccount).Get("/me", a.me)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAccount)
			r.Get("/profile", a.profile)
			r.Post("/profile", a.updateProfile)
			r.Post("/history/scans", a.recordScan)
			r.Post("/history/recommendations", a.recordRecommendation)
		})

		r.Post("/share", a.createShare)
		r.Get("/share/{id}", a.getShare)
	})

	return r, nil
}
