// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/cropwise/cropwise/internal/auth"
	"github.com/cropwise/cropwise/internal/history"
	"github.com/cropwise/cropwise/internal/observability"
	"github.com/cropwise/cropwise/internal/share"
	"github.com/cropwise/cropwise/internal/timebox"
	"github.com/cropwise/cropwise/pkg/errutil"
)

// userJSON is the public representation of an account.
type userJSON struct {
	ID              ulid.ULID `json:"id"`
	FirstName       string    `json:"firstName"`
	LastName        string    `json:"lastName"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	IsEmailVerified bool      `json:"isEmailVerified"`
}

func userOf(a *auth.Account) userJSON {
	return userJSON{
		ID:              a.ID,
		FirstName:       a.FirstName,
		LastName:        a.LastName,
		Username:        a.Username,
		Email:           a.Email,
		IsEmailVerified: a.EmailVerified,
	}
}

// outcome names the metrics outcome of err.
func outcome(err error) string {
	switch errutil.Code(err) {
	case "":
		if err == nil {
			return observability.OutcomeSuccess
		}
		return observability.OutcomeError
	case auth.CodeInvalidCredentials:
		return observability.OutcomeInvalidCredentials
	case auth.CodeAccountLocked:
		return observability.OutcomeLocked
	case auth.CodeDuplicate:
		return observability.OutcomeDuplicate
	case CodeValidation, share.CodeInvalid, auth.CodeInvalidName, auth.CodeInvalidUsername,
		auth.CodeInvalidEmail, auth.CodeInvalidPassword, auth.CodeInvalidProfile:
		return observability.OutcomeInvalid
	case share.CodeNotFound:
		return observability.OutcomeNotFound
	case share.CodeExpired:
		return observability.OutcomeExpired
	case timebox.CodeTimeout:
		return observability.OutcomeTimeout
	default:
		return observability.OutcomeError
	}
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		a.Metrics.Login(outcome(err))
		writeError(w, r, a.Logger, err, "")
		return
	}

	acct, err := a.Auth.Login(r.Context(), req.Email, req.Password)
	a.Metrics.Login(outcome(err))
	if err != nil {
		writeError(w, r, a.Logger, err, "")
		return
	}

	token, err := a.Sessions.Bind(w, acct, req.RememberMe)
	if err != nil {
		writeError(w, r, a.Logger, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"user":    userOf(acct),
		"token":   token,
	})
}

func (a *api) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decode(r, &req); err != nil {
		a.Metrics.Signup(outcome(err))
		writeError(w, r, a.Logger, err, "")
		return
	}

	acct, err := a.Auth.Signup(r.Context(), auth.SignupInput{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		AcceptTerms:     req.AcceptTerms,
	})
	a.Metrics.Signup(outcome(err))
	if err != nil {
		writeError(w, r, a.Logger, err, "")
		return
	}

	if _, err := a.Sessions.Bind(w, acct, false); err != nil {
		writeError(w, r, a.Logger, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Account created successfully!",
		"user":    userOf(acct),
	})
}

// logout clears the cookie. Issued tokens stay valid until they expire.
func (a *api) logout(w http.ResponseWriter, _ *http.Request) {
	a.Sessions.Clear(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (a *api) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"user": userOf(accountFrom(r.Context()))})
}

type profileJSON struct {
	auth.ProfileView
	CropsScanned     []history.ScanRecord           `json:"cropsScanned"`
	CropsRecommended []history.RecommendationRecord `json:"cropsRecommended"`
}

func (a *api) profileOf(r *http.Request, acct *auth.Account) (*profileJSON, error) {
	summary, err := a.History.Summary(r.Context(), acct.ID)
	if err != nil {
		return nil, err
	}
	return &profileJSON{
		ProfileView:      auth.ViewOf(acct),
		CropsScanned:     summary.Scans,
		CropsRecommended: summary.Recommendations,
	}, nil
}

func (a *api) profile(w http.ResponseWriter, r *http.Request) {
	p, err := a.profileOf(r, accountFrom(r.Context()))
	if err != nil {
		writeError(w, r, a.Logger, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": p})
}

func (a *api) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, a.Logger, err, "")
		return
	}

	acct, err := a.Auth.UpdateProfile(r.Context(), accountFrom(r.Context()).ID, auth.ProfileUpdate{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Username:     req.Username,
		Email:        req.Email,
		Phone:        req.Phone,
		CountryCode:  req.CountryCode,
		City:         req.City,
		ProfileImage: req.ProfileImage,
	})
	if err != nil {
		writeError(w, r, a.Logger, err, "")
		return
	}

	p, err := a.profileOf(r, acct)
	if err != nil {
		writeError(w, r, a.Logger, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "profile": p})
}

func (a *api) recordScan(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, a.Logger, err, "")
		return
	}

	rec, err := a.History.RecordScan(r.Context(), accountFrom(r.Context()).ID, history.ScanRecord{
		Disease:    req.Disease,
		Confidence: req.Confidence,
		Severity:   req.Severity,
		Treatment:  req.Treatment,
		Prevention: req.Prevention,
		ImageURL:   req.ImageURL,
	})
	if err != nil {
		writeError(w, r, a.Logger, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "record": rec})
}

func (a *api) recordRecommendation(w http.ResponseWriter, r *http.Request) {
	var req recommendationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, a.Logger, err, "")
		return
	}

	rec, err := a.History.RecordRecommendation(r.Context(), accountFrom(r.Context()).ID, history.RecommendationRecord{
		Crop:           req.Crop,
		Suitability:    req.Suitability,
		Profit:         req.Profit,
		ExpectedYield:  req.ExpectedYield,
		BestSeason:     req.BestSeason,
		WhyRecommended: req.WhyRecommended,
	})
	if err != nil {
		writeError(w, r, a.Logger, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "record": rec})
}

func (a *api) createShare(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := decode(r, &req); err != nil {
		a.Metrics.Share("create", outcome(err))
		writeError(w, r, a.Logger, err, "")
		return
	}

	created, err := a.Shares.Create(r.Context(), share.Fields{
		Disease:    req.Disease,
		Confidence: req.Confidence,
		Severity:   req.Severity,
		Treatment:  req.Treatment,
		Prevention: req.Prevention,
		ImageURL:   req.ImageURL,
	})
	a.Metrics.Share("create", outcome(err))
	if err != nil {
		writeError(w, r, a.Logger, err, "Failed to create shareable link")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"shareId":  created.ID,
		"shareUrl": created.URL,
	})
}

// shareJSON is a shared report as served to anyone holding the link.
type shareJSON struct {
	ID         ulid.ULID `json:"id"`
	Disease    string    `json:"disease"`
	Confidence float64   `json:"confidence"`
	Severity   string    `json:"severity"`
	Treatment  string    `json:"treatment"`
	Prevention string    `json:"prevention"`
	ImageURL   string    `json:"imageUrl"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

func (a *api) getShare(w http.ResponseWriter, r *http.Request) {
	report, err := a.Shares.Get(r.Context(), chi.URLParam(r, "id"))
	a.Metrics.Share("get", outcome(err))
	if err != nil {
		writeError(w, r, a.Logger, err, "")
		return
	}
	writeJSON(w, http.StatusOK, shareJSON{
		ID:         report.ID,
		Disease:    report.Disease,
		Confidence: report.Confidence,
		Severity:   report.Severity,
		Treatment:  report.Treatment,
		Prevention: report.Prevention,
		ImageURL:   report.ImageURL,
		CreatedAt:  report.CreatedAt,
		ExpiresAt:  report.ExpiresAt,
	})
}
