// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

// Package memory implements history.Repository in process memory.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/cropwise/cropwise/internal/history"
)

// HistoryRepository keeps records per account, oldest first.
type HistoryRepository struct {
	mu              sync.RWMutex
	scans           map[ulid.ULID][]history.ScanRecord
	recommendations map[ulid.ULID][]history.RecommendationRecord
}

// NewHistoryRepository creates an empty HistoryRepository.
func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{
		scans:           make(map[ulid.ULID][]history.ScanRecord),
		recommendations: make(map[ulid.ULID][]history.RecommendationRecord),
	}
}

func (r *HistoryRepository) AddScan(ctx context.Context, rec *history.ScanRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans[rec.AccountID] = append(r.scans[rec.AccountID], *rec)
	return nil
}

func (r *HistoryRepository) AddRecommendation(ctx context.Context, rec *history.RecommendationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := *rec
	c.WhyRecommended = slices.Clone(rec.WhyRecommended)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recommendations[rec.AccountID] = append(r.recommendations[rec.AccountID], c)
	return nil
}

func (r *HistoryRepository) ListScans(ctx context.Context, account ulid.ULID, limit int) ([]history.ScanRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return newestFirst(r.scans[account], limit), nil
}

func (r *HistoryRepository) ListRecommendations(ctx context.Context, account ulid.ULID, limit int) ([]history.RecommendationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := newestFirst(r.recommendations[account], limit)
	for i := range out {
		out[i].WhyRecommended = slices.Clone(out[i].WhyRecommended)
	}
	return out, nil
}

func newestFirst[T any](records []T, limit int) []T {
	out := slices.Clone(records)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

var _ history.Repository = (*HistoryRepository)(nil)
