// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

// Package share stores disease reports behind public, expiring links.
package share

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultTTL is how long a shared report stays readable.
const DefaultTTL = 30 * 24 * time.Hour

// Error codes.
const (
	CodeInvalid  = "SHARE_INVALID"
	CodeNotFound = "SHARE_NOT_FOUND"
	CodeExpired  = "SHARE_EXPIRED"
)

// ErrNotFound is returned by repositories when no report has the given ID.
var ErrNotFound = errors.New("shared report not found")

// Fields are the report contents submitted for sharing.
type Fields struct {
	Disease    string  `json:"disease"`
	Confidence float64 `json:"confidence"`
	Severity   string  `json:"severity"`
	Treatment  string  `json:"treatment"`
	Prevention string  `json:"prevention"`
	ImageURL   string  `json:"imageUrl"`
}

// Validate requires every field. A zero confidence counts as missing.
func (f Fields) Validate() error {
	checks := []struct {
		name  string
		empty bool
	}{
		{"disease", strings.TrimSpace(f.Disease) == ""},
		{"confidence", f.Confidence <= 0},
		{"severity", strings.TrimSpace(f.Severity) == ""},
		{"treatment", strings.TrimSpace(f.Treatment) == ""},
		{"prevention", strings.TrimSpace(f.Prevention) == ""},
		{"imageUrl", strings.TrimSpace(f.ImageURL) == ""},
	}
	var missing []string
	for _, c := range checks {
		if c.empty {
			missing = append(missing, c.name)
		}
	}
	if len(missing) > 0 {
		return oops.Code(CodeInvalid).With("missing", missing).Errorf("Missing required fields")
	}
	return nil
}

// Report is a stored shared report.
type Report struct {
	ID ulid.ULID `json:"id"`
	Fields
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IsExpiredAt returns true once t is past ExpiresAt.
func (r *Report) IsExpiredAt(t time.Time) bool {
	return r.ExpiresAt.Before(t)
}

// Repository persists shared reports.
type Repository interface {
	// Create stores a new report.
	Create(ctx context.Context, report *Report) error

	// Get returns the report with id, expired or not, or an error wrapping
	// ErrNotFound.
	Get(ctx context.Context, id ulid.ULID) (*Report, error)

	// DeleteExpired removes reports whose ExpiresAt is before now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// NotFoundError builds the CodeNotFound error for id.
func NotFoundError(id string) error {
	return oops.Code(CodeNotFound).With("share_id", id).Wrap(ErrNotFound)
}
