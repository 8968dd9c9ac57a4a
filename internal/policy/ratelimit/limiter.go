// Package ratelimit implements a keyed token bucket limiter used to cap how
// fast a backend populates cells.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DelayObserver is told how long a caller waited for a token.
type DelayObserver func(key string, d time.Duration)

// Limiter manages one token bucket per key.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	observe      DelayObserver
}

// Config holds rate limiter configuration.
type Config struct {
	// DefaultRPS is tokens per second per key. Zero or less means unlimited.
	DefaultRPS   float64 `mapstructure:"rps"`
	DefaultBurst int     `mapstructure:"burst"`
}

// New creates a new Limiter. observe may be nil.
func New(cfg Config, observe DelayObserver) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
		observe:      observe,
	}
}

// Unlimited reports whether the limiter never delays.
func (l *Limiter) Unlimited() bool {
	return l == nil || l.defaultRate == rate.Inf
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
	// Tokens that were already available are not reported as delay.
	if d := time.Since(start); d > time.Millisecond && l.observe != nil {
		l.observe(key, d)
	}
	return nil
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[key] = limiter
	}
	return limiter
}
