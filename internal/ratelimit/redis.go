// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cropwise Contributors

package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// DefaultRedisPrefix namespaces rate limit keys.
const DefaultRedisPrefix = "cropwise:ratelimit:"

// hitScript increments the key, starts its expiry on the first hit and
// returns the count and remaining milliseconds. A key that lost its TTL is
// given a fresh one so it cannot count forever.
var hitScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisStore shares windows across instances through Redis. Expiry is
// handled by Redis, so no sweeping is needed.
type RedisStore struct {
	client redis.Scripter
	prefix string
}

// NewRedisStore creates a RedisStore. An empty prefix selects DefaultRedisPrefix.
func NewRedisStore(client redis.Scripter, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Hit implements Store.
func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	vals, err := hitScript.Run(ctx, s.client, []string{s.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, oops.Code("RATE_LIMIT_STORE_FAILED").
			With("backend", "redis").
			Wrap(err)
	}
	if len(vals) != 2 {
		return 0, time.Time{}, oops.Code("RATE_LIMIT_STORE_FAILED").
			With("backend", "redis").
			Errorf("unexpected script result length %d", len(vals))
	}
	return int(vals[0]), now.Add(time.Duration(vals[1]) * time.Millisecond), nil
}

var _ Store = (*RedisStore)(nil)
