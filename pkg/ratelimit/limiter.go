// Copyright 2026 Forge Works
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ratelimit implements per-user, per-route fixed window limiting.
//
// Counters are keyed by (user, route): different users and different
// routes never share a counter. With a Redis store the counters are
// cluster-wide; the in-memory store has no cross-process guarantee.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/forgeworks/sidecar/pkg/config"
)

// Result is the outcome of one admission check.
type Result struct {
	Allowed bool `json:"allowed"`

	// RetryAfter is the remaining window, in whole seconds, rounded up.
	// Only set when the request is rejected.
	RetryAfter int `json:"retryAfter,omitempty"`
}

// Store increments windowed counters.
type Store interface {
	// Increment adds one to the counter for key within the window
	// starting at windowStart and returns the new count.
	Increment(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error)

	Close() error
}

// Limiter admits or rejects requests against a fixed window.
type Limiter struct {
	cfg   config.RateLimitConfig
	store Store
	now   func() time.Time
}

// New builds a limiter. A disabled config short-circuits every check to
// allowed; the store may then be nil.
func New(cfg config.RateLimitConfig, store Store) (*Limiter, error) {
	if cfg.Enabled && store == nil {
		return nil, fmt.Errorf("rate limiter store is required when enabled")
	}
	return &Limiter{cfg: cfg, store: store, now: time.Now}, nil
}

// NewFromConfig wires the configured store: Redis when redisUrl is set,
// otherwise in-process memory.
func NewFromConfig(cfg config.RateLimitConfig) (*Limiter, error) {
	if !cfg.Enabled {
		return New(cfg, nil)
	}
	if cfg.RedisURL != "" {
		store, err := NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		return New(cfg, store)
	}
	return New(cfg, NewMemoryStore())
}

// Allow records one request for (user, route) and reports whether it is
// within budget. The increment happens before the comparison, so under
// concurrent races the counter may pass maxRequests by the number of
// in-flight requests, never more.
func (l *Limiter) Allow(ctx context.Context, user, route string) (Result, error) {
	if !l.cfg.Enabled {
		return Result{Allowed: true}, nil
	}

	window := time.Duration(l.cfg.WindowMs) * time.Millisecond
	now := l.now()
	windowStart := now.Truncate(window)
	key := fmt.Sprintf("%s|%s|%d", user, route, windowStart.UnixMilli())

	count, err := l.store.Increment(ctx, key, windowStart, window)
	if err != nil {
		return Result{}, fmt.Errorf("rate limit increment failed: %w", err)
	}

	if count > int64(l.cfg.MaxRequests) {
		remaining := windowStart.Add(window).Sub(now)
		retryAfter := int((remaining + time.Second - 1) / time.Second)
		if retryAfter < 1 {
			retryAfter = 1
		}
		return Result{Allowed: false, RetryAfter: retryAfter}, nil
	}
	return Result{Allowed: true}, nil
}

// Close releases the store.
func (l *Limiter) Close() error {
	if l.store == nil {
		return nil
	}
	return l.store.Close()
}
