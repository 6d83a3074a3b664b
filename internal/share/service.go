// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package share

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cropwise/cropwise/internal/timebox"
)

// Default operation ceilings.
const (
	DefaultCreateTimeout = 15 * time.Second
	DefaultGetTimeout    = 8 * time.Second
	DefaultBaseURL       = "http://localhost:3000"
)

var tracer = otel.Tracer("cropwise/share")

// Config configures a Service. Zero values select the defaults.
type Config struct {
	BaseURL       string
	TTL           time.Duration
	CreateTimeout time.Duration
	GetTimeout    time.Duration
	Clock         func() time.Time
}

// Created identifies a newly shared report.
type Created struct {
	ID  ulid.ULID
	URL string
}

// Service creates and reads shared reports.
type Service struct {
	repo   Repository
	cfg    Config
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(repo Repository, cfg Config, logger *slog.Logger) (*Service, error) {
	if repo == nil {
		return nil, oops.Code("SHARE_INTERNAL").Errorf("share repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.CreateTimeout == 0 {
		cfg.CreateTimeout = DefaultCreateTimeout
	}
	if cfg.GetTimeout == 0 {
		cfg.GetTimeout = DefaultGetTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Service{repo: repo, cfg: cfg, logger: logger}, nil
}

// URLFor returns the public link of a report.
func (s *Service) URLFor(id ulid.ULID) string {
	return s.cfg.BaseURL + "/shared/" + id.String()
}

// Create validates fields and stores a new report expiring after the
// configured TTL. Invalid input is never persisted.
func (s *Service) Create(ctx context.Context, f Fields) (Created, error) {
	ctx, span := tracer.Start(ctx, "share.create")
	defer span.End()

	if err := f.Validate(); err != nil {
		return Created{}, err
	}

	now := s.cfg.Clock()
	report := &Report{
		ID:        ulid.Make(),
		Fields:    f,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}

	err := timebox.Do(ctx, s.cfg.CreateTimeout, "create shared report", func(ctx context.Context) error {
		return s.repo.Create(ctx, report)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return Created{}, err
	}

	span.SetAttributes(attribute.String("share.id", report.ID.String()))
	s.logger.InfoContext(ctx, "shared report created",
		"share_id", report.ID.String(),
		"expires_at", report.ExpiresAt.UTC())
	return Created{ID: report.ID, URL: s.URLFor(report.ID)}, nil
}

// Get returns the report with the given id. Unknown or malformed ids yield
// CodeNotFound; reports past their expiry yield CodeExpired.
func (s *Service) Get(ctx context.Context, rawID string) (*Report, error) {
	ctx, span := tracer.Start(ctx, "share.get")
	defer span.End()

	id, err := ulid.ParseStrict(rawID)
	if err != nil {
		return nil, NotFoundError(rawID)
	}

	report, err := timebox.Run(ctx, s.cfg.GetTimeout, "get shared report", func(ctx context.Context) (*Report, error) {
		return s.repo.Get(ctx, id)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if report.IsExpiredAt(s.cfg.Clock()) {
		return nil, oops.Code(CodeExpired).
			With("share_id", id.String()).
			With("expired_at", report.ExpiresAt.UTC().Format(time.RFC3339)).
			Errorf("Report has expired")
	}
	return report, nil
}
