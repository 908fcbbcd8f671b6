// Package ratelimit throttles calls to external services with one token bucket per key.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/streetview-harvester/internal/metrics"
	"golang.org/x/time/rate"
)

// Limiter manages per-key rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	overrides    map[string]Config
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration. RPS <= 0 disables throttling.
type Config struct {
	RPS   float64
	Burst int
}

func (c Config) limit() (rate.Limit, int) {
	r := rate.Limit(c.RPS)
	if c.RPS <= 0 {
		r = rate.Inf
	}
	burst := c.Burst
	if burst <= 0 {
		burst = 1
	}
	return r, burst
}

// New creates a Limiter whose unknown keys use cfg.
func New(cfg Config) *Limiter {
	r, burst := cfg.limit()
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		overrides:    make(map[string]Config),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Configure sets a dedicated budget for key. It must be called before the first Wait on key.
func (l *Limiter) Configure(key string, cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[key] = cfg
	delete(l.limiters, key)
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, exists := l.limiters[key]
	if !exists {
		r, burst := l.defaultRate, l.defaultBurst
		if cfg, ok := l.overrides[key]; ok {
			r, burst = cfg.limit()
		}
		limiter = rate.NewLimiter(r, burst)
		l.limiters[key] = limiter
	}
	return limiter
}

// Wait blocks until a token is available for key, respecting the context.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if l == nil {
		return nil
	}
	limiter := l.bucket(key)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay(key, d)
	}
	return nil
}
