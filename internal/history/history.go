// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

// Package history records the disease scans and crop recommendations an
// account has produced, for display on the profile page.
package history

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/cropwise/cropwise/internal/timebox"
)

// CodeInvalid tags rejected records.
const CodeInvalid = "HISTORY_INVALID"

// DefaultStoreTimeout bounds every repository call.
const DefaultStoreTimeout = 10 * time.Second

// DefaultListLimit is how many records of each kind a profile shows.
const DefaultListLimit = 50

// ScanRecord is a saved disease detection.
type ScanRecord struct {
	ID         ulid.ULID `json:"id"`
	AccountID  ulid.ULID `json:"-"`
	Disease    string    `json:"disease"`
	Confidence float64   `json:"confidence"`
	Severity   string    `json:"severity"`
	Treatment  string    `json:"treatment"`
	Prevention string    `json:"prevention"`
	ImageURL   string    `json:"imageUrl"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RecommendationRecord is a saved crop recommendation.
type RecommendationRecord struct {
	ID             ulid.ULID `json:"id"`
	AccountID      ulid.ULID `json:"-"`
	Crop           string    `json:"crop"`
	Suitability    string    `json:"suitability"`
	Profit         string    `json:"profit"`
	ExpectedYield  string    `json:"expected_yield"`
	BestSeason     string    `json:"best_season"`
	WhyRecommended []string  `json:"why_recommended"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Summary is everything the profile page shows for one account.
type Summary struct {
	Scans           []ScanRecord           `json:"scanHistory"`
	Recommendations []RecommendationRecord `json:"recommendations"`
}

// Repository persists history records.
type Repository interface {
	AddScan(ctx context.Context, rec *ScanRecord) error
	AddRecommendation(ctx context.Context, rec *RecommendationRecord) error

	// ListScans returns at most limit scans of account, newest first.
	ListScans(ctx context.Context, account ulid.ULID, limit int) ([]ScanRecord, error)

	// ListRecommendations returns at most limit recommendations of
	// account, newest first.
	ListRecommendations(ctx context.Context, account ulid.ULID, limit int) ([]RecommendationRecord, error)
}

// Config configures a Service.
type Config struct {
	StoreTimeout time.Duration
	ListLimit    int
	Clock        func() time.Time
}

// Service validates and stores history records.
type Service struct {
	repo   Repository
	cfg    Config
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(repo Repository, cfg Config, logger *slog.Logger) (*Service, error) {
	if repo == nil {
		return nil, oops.Errorf("history repository is required")
	}
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = DefaultListLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cfg: cfg, logger: logger}, nil
}

// RecordScan stores a scan for account. Every report field is required
// and confidence must lie in (0, 100].
func (s *Service) RecordScan(ctx context.Context, account ulid.ULID, rec ScanRecord) (*ScanRecord, error) {
	if err := validateScan(rec); err != nil {
		return nil, err
	}
	rec.ID = ulid.Make()
	rec.AccountID = account
	rec.CreatedAt = s.cfg.Clock()

	err := timebox.Do(ctx, s.cfg.StoreTimeout, "record scan", func(ctx context.Context) error {
		return s.repo.AddScan(ctx, &rec)
	})
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "scan recorded", "account_id", account.String(), "record_id", rec.ID.String())
	return &rec, nil
}

// RecordRecommendation stores a recommendation for account. The crop is
// required.
func (s *Service) RecordRecommendation(ctx context.Context, account ulid.ULID, rec RecommendationRecord) (*RecommendationRecord, error) {
	if strings.TrimSpace(rec.Crop) == "" {
		return nil, oops.Code(CodeInvalid).With("field", "crop").Errorf("Missing crop name")
	}
	if rec.WhyRecommended == nil {
		rec.WhyRecommended = []string{}
	}
	rec.ID = ulid.Make()
	rec.AccountID = account
	rec.CreatedAt = s.cfg.Clock()

	err := timebox.Do(ctx, s.cfg.StoreTimeout, "record recommendation", func(ctx context.Context) error {
		return s.repo.AddRecommendation(ctx, &rec)
	})
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "recommendation recorded", "account_id", account.String(), "record_id", rec.ID.String())
	return &rec, nil
}

func validateScan(rec ScanRecord) error {
	required := []struct {
		field string
		value string
	}{
		{"disease", rec.Disease},
		{"severity", rec.Severity},
		{"treatment", rec.Treatment},
		{"prevention", rec.Prevention},
		{"imageUrl", rec.ImageURL},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return oops.Code(CodeInvalid).With("field", r.field).Errorf("Missing fields")
		}
	}
	if rec.Confidence <= 0 {
		return oops.Code(CodeInvalid).With("field", "confidence").Errorf("Missing fields")
	}
	return nil
}

// Summary loads the newest scans and recommendations of account.
func (s *Service) Summary(ctx context.Context, account ulid.ULID) (*Summary, error) {
	scans, err := timebox.Run(ctx, s.cfg.StoreTimeout, "list scans", func(ctx context.Context) ([]ScanRecord, error) {
		return s.repo.ListScans(ctx, account, s.cfg.ListLimit)
	})
	if err != nil {
		return nil, err
	}
	recs, err := timebox.Run(ctx, s.cfg.StoreTimeout, "list recommendations", func(ctx context.Context) ([]RecommendationRecord, error) {
		return s.repo.ListRecommendations(ctx, account, s.cfg.ListLimit)
	})
	if err != nil {
		return nil, err
	}
	if scans == nil {
		scans = []ScanRecord{}
	}
	if recs == nil {
		recs = []RecommendationRecord{}
	}
	return &Summary{Scans: scans, Recommendations: recs}, nil
}
