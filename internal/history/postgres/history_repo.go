// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

// Package postgres implements history.Repository on PostgreSQL.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/cropwise/cropwise/internal/history"
	"github.com/cropwise/cropwise/internal/store"
)

const (
	scanColumns = `id, account_id, disease, confidence, severity, treatment,
		prevention, image_url, created_at`
	recommendationColumns = `id, account_id, crop, suitability, profit,
		expected_yield, best_season, why_recommended, created_at`
)

// HistoryRepository implements history.Repository using PostgreSQL.
type HistoryRepository struct {
	pool store.Querier
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(pool store.Querier) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

// AddScan inserts a scan record.
func (r *HistoryRepository) AddScan(ctx context.Context, rec *history.ScanRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO scan_records (`+scanColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		rec.ID.String(),
		rec.AccountID.String(),
		rec.Disease,
		rec.Confidence,
		rec.Severity,
		rec.Treatment,
		rec.Prevention,
		rec.ImageURL,
		rec.CreatedAt,
	)
	if err != nil {
		return oops.Code("HISTORY_CREATE_FAILED").
			With("operation", "insert scan record").
			With("account_id", rec.AccountID.String()).
			Wrap(err)
	}
	return nil
}

// AddRecommendation inserts a recommendation record.
func (r *HistoryRepository) AddRecommendation(ctx context.Context, rec *history.RecommendationRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO recommendation_records (`+recommendationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		rec.ID.String(),
		rec.AccountID.String(),
		rec.Crop,
		rec.Suitability,
		rec.Profit,
		rec.ExpectedYield,
		rec.BestSeason,
		rec.WhyRecommended,
		rec.CreatedAt,
	)
	if err != nil {
		return oops.Code("HISTORY_CREATE_FAILED").
			With("operation", "insert recommendation record").
			With("account_id", rec.AccountID.String()).
			Wrap(err)
	}
	return nil
}

// ListScans returns the newest scans of account.
func (r *HistoryRepository) ListScans(ctx context.Context, account ulid.ULID, limit int) ([]history.ScanRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scanColumns+` FROM scan_records
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, account.String(), limit)
	if err != nil {
		return nil, listError("list scans", account, err)
	}
	defer rows.Close()

	out := []history.ScanRecord{}
	for rows.Next() {
		var (
			rec            history.ScanRecord
			idStr, acctStr string
		)
		if err := rows.Scan(&idStr, &acctStr, &rec.Disease, &rec.Confidence, &rec.Severity,
			&rec.Treatment, &rec.Prevention, &rec.ImageURL, &rec.CreatedAt); err != nil {
			return nil, listError("scan scan record", account, err)
		}
		if err := parseIDs(idStr, acctStr, &rec.ID, &rec.AccountID); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, listError("iterate scans", account, err)
	}
	return out, nil
}

// ListRecommendations returns the newest recommendations of account.
func (r *HistoryRepository) ListRecommendations(ctx context.Context, account ulid.ULID, limit int) ([]history.RecommendationRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recommendationColumns+` FROM recommendation_records
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, account.String(), limit)
	if err != nil {
		return nil, listError("list recommendations", account, err)
	}
	return collectRecommendations(rows, account)
}

func collectRecommendations(rows pgx.Rows, account ulid.ULID) ([]history.RecommendationRecord, error) {
	defer rows.Close()

	out := []history.RecommendationRecord{}
	for rows.Next() {
		var (
			rec            history.RecommendationRecord
			idStr, acctStr string
		)
		if err := rows.Scan(&idStr, &acctStr, &rec.Crop, &rec.Suitability, &rec.Profit,
			&rec.ExpectedYield, &rec.BestSeason, &rec.WhyRecommended, &rec.CreatedAt); err != nil {
			return nil, listError("scan recommendation record", account, err)
		}
		if err := parseIDs(idStr, acctStr, &rec.ID, &rec.AccountID); err != nil {
			return nil, err
		}
		if rec.WhyRecommended == nil {
			rec.WhyRecommended = []string{}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, listError("iterate recommendations", account, err)
	}
	return out, nil
}

func parseIDs(idStr, accountStr string, id, account *ulid.ULID) error {
	var err error
	if *id, err = ulid.Parse(idStr); err != nil {
		return oops.Code("HISTORY_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	if *account, err = ulid.Parse(accountStr); err != nil {
		return oops.Code("HISTORY_CORRUPT_ID").With("account_id", accountStr).Wrap(err)
	}
	return nil
}

func listError(operation string, account ulid.ULID, err error) error {
	return oops.Code("HISTORY_LIST_FAILED").
		With("operation", operation).
		With("account_id", account.String()).
		Wrap(err)
}

var _ history.Repository = (*HistoryRepository)(nil)
