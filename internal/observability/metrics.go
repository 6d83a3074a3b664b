// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeLocked             = "locked"
	OutcomeInvalid            = "invalid"
	OutcomeDuplicate          = "duplicate"
	OutcomeNotFound           = "not_found"
	OutcomeExpired            = "expired"
	OutcomeTimeout            = "timeout"
	OutcomeError              = "error"
)

// Metrics contains the application metrics of cropwise.
type Metrics struct {
	LoginAttempts       *prometheus.CounterVec
	Signups             *prometheus.CounterVec
	RateLimitRejections *prometheus.CounterVec
	ShareOperations     *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
}

// NewMetrics creates and registers the application metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cropwise_login_attempts_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		Signups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cropwise_signups_total",
				Help: "Total number of signups by outcome",
			},
			[]string{"outcome"},
		),
		RateLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cropwise_ratelimit_rejections_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"policy"},
		),
		ShareOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cropwise_share_operations_total",
				Help: "Total number of shared report operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cropwise_http_requests_total",
				Help: "Total number of HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cropwise_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(
		m.LoginAttempts,
		m.Signups,
		m.RateLimitRejections,
		m.ShareOperations,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// ObserveRequest records one served HTTP request. Safe on a nil receiver.
func (m *Metrics) ObserveRequest(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Login counts a login attempt. Safe on a nil receiver.
func (m *Metrics) Login(outcome string) {
	if m != nil {
		m.LoginAttempts.WithLabelValues(outcome).Inc()
	}
}

// Signup counts a signup attempt. Safe on a nil receiver.
func (m *Metrics) Signup(outcome string) {
	if m != nil {
		m.Signups.WithLabelValues(outcome).Inc()
	}
}

// RateLimited counts a rejection by policy. Safe on a nil receiver.
func (m *Metrics) RateLimited(policy string) {
	if m != nil {
		m.RateLimitRejections.WithLabelValues(policy).Inc()
	}
}

// Share counts a share create or read. Safe on a nil receiver.
func (m *Metrics) Share(operation, outcome string) {
	if m != nil {
		m.ShareOperations.WithLabelValues(operation, outcome).Inc()
	}
}
