// Package ratelimit wraps golang.org/x/time/rate with per-key limiters.
// Thread-safe. Keys are opaque: callers use user IDs for API limiting and
// integration IDs for outbound call limiting, with per-key rate overrides.
package ratelimit

import (
	"errors"
	"sync"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a key has exhausted its token bucket.
var ErrRateLimited = errors.New("rate limit exceeded")

// Config configures a token bucket.
type Config struct {
	RequestsPerMinute int // Tokens added per minute. 0 = unlimited (Allow always succeeds).
	BurstSize         int // Maximum tokens in bucket. 0 = defaults to RequestsPerMinute.
}

func (c Config) limit() rate.Limit {
	if c.RequestsPerMinute <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(c.RequestsPerMinute) / 60.0)
}

func (c Config) burst() int {
	b := c.BurstSize
	if b <= 0 {
		b = c.RequestsPerMinute
	}
	if b <= 0 {
		b = 1 // rate.Inf still needs a positive burst
	}
	return b
}

// Limiter keeps one *rate.Limiter per key.
// Each key gets an independent bucket; one key cannot exhaust another's quota.
type Limiter struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	overrides map[string]Config
	def       Config
}

// NewLimiter creates a rate limiter with the given default configuration.
// If RequestsPerMinute is 0, keys without an override are unlimited.
func NewLimiter(cfg Config) *Limiter {
	return &Limiter{
		limiters:  make(map[string]*rate.Limiter),
		overrides: make(map[string]Config),
		def:       cfg,
	}
}

// SetRate overrides the bucket configuration for one key. The key's bucket
// is reset to full at the new capacity.
func (l *Limiter) SetRate(key string, cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[key] = cfg
	l.limiters[key] = rate.NewLimiter(cfg.limit(), cfg.burst())
}

// ClearRate removes a key's override and its bucket state.
func (l *Limiter) ClearRate(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.overrides, key)
	delete(l.limiters, key)
}

// Allow checks whether the key has tokens remaining.
// Consumes one token on success. Returns ErrRateLimited if the bucket is empty.
func (l *Limiter) Allow(key string) error {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		cfg := l.def
		if override, has := l.overrides[key]; has {
			cfg = override
		}
		// First request: rate.NewLimiter starts with a full bucket.
		lim = rate.NewLimiter(cfg.limit(), cfg.burst())
		l.limiters[key] = lim
	}
	l.mu.Unlock()

	if !lim.Allow() {
		return ErrRateLimited
	}
	return nil
}
