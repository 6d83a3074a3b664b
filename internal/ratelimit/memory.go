// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultSweepInterval is how often the background sweeper evicts expired windows.
const DefaultSweepInterval = time.Minute

type bucket struct {
	count   int
	resetAt time.Time
}

// MemoryStore keeps windows in process memory. Safe for concurrent use.
//
// Counts are per process: behind N instances the effective limit is N times
// the configured one. Use RedisStore to share counts.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	gauge prometheus.Gauge

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets:  make(map[string]*bucket),
		stopChan: make(chan struct{}),
	}
}

// NewMemoryStoreWithRegistry creates an empty store and registers a gauge of
// tracked windows with reg.
func NewMemoryStoreWithRegistry(reg prometheus.Registerer) *MemoryStore {
	s := NewMemoryStore()
	s.gauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cropwise_ratelimit_buckets",
		Help: "Current number of tracked rate limit windows",
	})
	reg.MustRegister(s.gauge)
	return s
}

// Hit implements Store.
func (s *MemoryStore) Hit(_ context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || now.After(b.resetAt) {
		b = &bucket{count: 1, resetAt: now.Add(window)}
		s.buckets[key] = b
		s.updateGaugeLocked()
		return b.count, b.resetAt, nil
	}
	b.count++
	return b.count, b.resetAt, nil
}

// Sweep evicts windows that ended before now and returns how many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, b := range s.buckets {
		if now.After(b.resetAt) {
			delete(s.buckets, key)
			removed++
		}
	}
	s.updateGaugeLocked()
	return removed
}

// Len returns the number of tracked windows.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

func (s *MemoryStore) updateGaugeLocked() {
	if s.gauge != nil {
		s.gauge.Set(float64(len(s.buckets)))
	}
}

// StartSweeper runs Sweep every interval until Close is called.
// A non-positive interval selects DefaultSweepInterval.
func (s *MemoryStore) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopChan:
				return
			case now := <-ticker.C:
				s.Sweep(now)
			}
		}
	}()
}

// Close stops the sweeper, if running, and waits for it to exit.
// Safe to call more than once.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

var _ Store = (*MemoryStore)(nil)
