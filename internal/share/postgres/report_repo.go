// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

// Package postgres implements share.Repository on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/cropwise/cropwise/internal/share"
	"github.com/cropwise/cropwise/internal/store"
)

const reportColumns = `id, disease, confidence, severity, treatment, prevention,
	image_url, created_at, expires_at`

// ReportRepository implements share.Repository using PostgreSQL.
type ReportRepository struct {
	pool store.Querier
}

// NewReportRepository creates a new ReportRepository.
func NewReportRepository(pool store.Querier) *ReportRepository {
	return &ReportRepository{pool: pool}
}

// Create inserts a report.
func (r *ReportRepository) Create(ctx context.Context, report *share.Report) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO shared_reports (`+reportColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		report.ID.String(),
		report.Disease,
		report.Confidence,
		report.Severity,
		report.Treatment,
		report.Prevention,
		report.ImageURL,
		report.CreatedAt,
		report.ExpiresAt,
	)
	if err != nil {
		return oops.Code("SHARE_CREATE_FAILED").
			With("operation", "insert shared report").
			With("share_id", report.ID.String()).
			Wrap(err)
	}
	return nil
}

// Get loads a report by id regardless of expiry.
func (r *ReportRepository) Get(ctx context.Context, id ulid.ULID) (*share.Report, error) {
	var (
		report share.Report
		idStr  string
	)
	err := r.pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM shared_reports WHERE id = $1`, id.String()).Scan(
		&idStr,
		&report.Disease,
		&report.Confidence,
		&report.Severity,
		&report.Treatment,
		&report.Prevention,
		&report.ImageURL,
		&report.CreatedAt,
		&report.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, share.NotFoundError(id.String())
	}
	if err != nil {
		return nil, oops.Code("SHARE_GET_FAILED").
			With("operation", "get shared report").
			With("share_id", id.String()).
			Wrap(err)
	}
	report.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SHARE_CORRUPT_ID").With("share_id", idStr).Wrap(err)
	}
	return &report, nil
}

// DeleteExpired removes reports whose expires_at is before now.
func (r *ReportRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM shared_reports WHERE expires_at < $1`, now)
	if err != nil {
		return 0, oops.Code("SHARE_DELETE_FAILED").
			With("operation", "delete expired shared reports").
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

var _ share.Repository = (*ReportRepository)(nil)
