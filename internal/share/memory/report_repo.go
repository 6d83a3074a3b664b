// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

// Package memory implements share.Repository in process memory.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/cropwise/cropwise/internal/share"
)

// ReportRepository keeps shared reports in a map.
type ReportRepository struct {
	mu      sync.RWMutex
	reports map[ulid.ULID]share.Report
}

// NewReportRepository creates an empty ReportRepository.
func NewReportRepository() *ReportRepository {
	return &ReportRepository{reports: make(map[ulid.ULID]share.Report)}
}

// Create stores a copy of report.
func (r *ReportRepository) Create(ctx context.Context, report *share.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reports[report.ID]; ok {
		return oops.Code("SHARE_CREATE_FAILED").With("share_id", report.ID.String()).Errorf("report id already stored")
	}
	r.reports[report.ID] = *report
	return nil
}

// Get returns a copy of the stored report.
func (r *ReportRepository) Get(ctx context.Context, id ulid.ULID) (*share.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	report, ok := r.reports[id]
	if !ok {
		return nil, share.NotFoundError(id.String())
	}
	return &report, nil
}

// DeleteExpired removes reports that expired before now.
func (r *ReportRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, report := range r.reports {
		if report.IsExpiredAt(now) {
			delete(r.reports, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored reports.
func (r *ReportRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.reports)
}

var _ share.Repository = (*ReportRepository)(nil)
