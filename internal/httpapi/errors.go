// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/cropwise/cropwise/internal/auth"
	"github.com/cropwise/cropwise/internal/history"
	"github.com/cropwise/cropwise/internal/ratelimit"
	"github.com/cropwise/cropwise/internal/share"
	"github.com/cropwise/cropwise/internal/timebox"
	"github.com/cropwise/cropwise/pkg/errutil"
)

// Fixed client messages.
const (
	msgInternal           = "Internal server error"
	msgInvalidCredentials = "Invalid email or password"
	msgLocked             = "Account is temporarily locked due to too many failed login attempts. Please try again later."
	msgUnauthorized       = "Unauthorized"
	msgUserNotFound       = "User not found"
	msgTimeout            = "Request timeout - please try again"
	msgReportNotFound     = "Report not found"
	msgReportExpired      = "Report has expired"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string      `json:"error"`
	Field   string      `json:"field,omitempty"`
	Details []Violation `json:"details,omitempty"`
}

// classify maps an error code to a status and client message. An empty
// message means the error's own text is shown.
func classify(code string) (int, string) {
	switch code {
	case CodeValidation,
		auth.CodeInvalidName,
		auth.CodeInvalidUsername,
		auth.CodeInvalidEmail,
		auth.CodeInvalidPassword,
		auth.CodeInvalidProfile,
		auth.CodeDuplicate,
		share.CodeInvalid,
		history.CodeInvalid:
		return http.StatusBadRequest, ""
	case auth.CodeInvalidCredentials:
		return http.StatusUnauthorized, msgInvalidCredentials
	case auth.CodeUnauthenticated, auth.CodeTokenInvalid, auth.CodeTokenExpired:
		return http.StatusUnauthorized, msgUnauthorized
	case auth.CodeAccountLocked:
		return http.StatusLocked, msgLocked
	case ratelimit.CodeRateLimited:
		return http.StatusTooManyRequests, "Too many requests. Please try again later."
	case auth.CodeAccountNotFound:
		return http.StatusNotFound, msgUserNotFound
	case share.CodeNotFound:
		return http.StatusNotFound, msgReportNotFound
	case share.CodeExpired:
		return http.StatusGone, msgReportExpired
	case timebox.CodeTimeout:
		return http.StatusRequestTimeout, msgTimeout
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// writeError maps err onto a response. Server errors are logged with their
// code and context and shown to the client as fallback.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, fallback string) {
	code := errutil.Code(err)
	status, msg := classify(code)

	body := errorBody{Error: msg}
	if msg == "" {
		body.Error = err.Error()
	}
	if status == http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), logger, "request failed", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()))
		if fallback != "" {
			body.Error = fallback
		}
	} else if status == http.StatusRequestTimeout {
		logger.WarnContext(r.Context(), "request timed out", "path", r.URL.Path, "error", err)
	}

	if code == auth.CodeDuplicate {
		if field, ok := errutil.ContextValue(err, "field"); ok {
			body.Field, _ = field.(string)
		}
	}
	if code == CodeValidation {
		if details, ok := errutil.ContextValue(err, "details"); ok {
			body.Details, _ = details.([]Violation)
		}
	}

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(v)
}
