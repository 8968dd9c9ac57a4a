// Package availability builds continuation predicates that tell a scheduling
// run whether its target can still accept new work.
package availability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/chunkgen/internal/scheduler"
)

// All holds only while every non-nil predicate holds. It short-circuits in
// argument order.
func All(preds ...scheduler.Predicate) scheduler.Predicate {
	active := make([]scheduler.Predicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			active = append(active, p)
		}
	}
	return func() bool {
		for _, p := range active {
			if !p() {
				return false
			}
		}
		return true
	}
}

// Context holds until ctx is done, so process shutdown stops admission.
func Context(ctx context.Context) scheduler.Predicate {
	return func() bool {
		return ctx.Err() == nil
	}
}

// FlagKey returns the Redis key that marks region as available.
func FlagKey(prefix, region string) string {
	if prefix == "" {
		prefix = "chunkgen"
	}
	return fmt.Sprintf("%s:region:%s:available", prefix, region)
}

// Client is the subset of *redis.Client used by RedisFlag.
type Client interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisFlagConfig tunes a RedisFlag.
type RedisFlagConfig struct {
	// Refresh is how long a lookup result is reused. Zero checks every call.
	Refresh time.Duration
	// Timeout bounds each Redis round trip (default 500ms).
	Timeout time.Duration
	Logger  *zap.Logger
}

// RedisFlag treats a region as available while its key exists in Redis. An
// operator can stop a running generation by deleting the key. Lookup errors
// count as unavailable.
type RedisFlag struct {
	client  Client
	key     string
	refresh time.Duration
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	cached    bool
	checkedAt time.Time
}

// NewRedisFlag builds a flag for key.
func NewRedisFlag(client Client, key string, cfg RedisFlagConfig) *RedisFlag {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &RedisFlag{
		client:  client,
		key:     key,
		refresh: cfg.Refresh,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		now:     time.Now,
	}
}

// Key returns the watched key.
func (f *RedisFlag) Key() string {
	return f.key
}

// Mark sets the key so the region reads as available.
func (f *RedisFlag) Mark(ctx context.Context) error {
	if err := f.client.Set(ctx, f.key, "1", 0).Err(); err != nil {
		return fmt.Errorf("mark %s available: %w", f.key, err)
	}
	f.invalidate()
	return nil
}

// Clear deletes the key so the region reads as unavailable.
func (f *RedisFlag) Clear(ctx context.Context) error {
	if err := f.client.Del(ctx, f.key).Err(); err != nil {
		return fmt.Errorf("clear %s: %w", f.key, err)
	}
	f.invalidate()
	return nil
}

// Available reports whether the key exists, reusing a recent answer when a
// refresh interval is configured.
func (f *RedisFlag) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	if f.refresh > 0 && !f.checkedAt.IsZero() && now.Sub(f.checkedAt) < f.refresh {
		return f.cached
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	n, err := f.client.Exists(ctx, f.key).Result()
	if err != nil {
		f.logger.Warn("availability lookup failed; treating region as unavailable",
			zap.String("key", f.key), zap.Error(err))
		f.cached = false
	} else {
		f.cached = n > 0
	}
	f.checkedAt = now
	return f.cached
}

// Predicate exposes Available as a scheduler.Predicate.
func (f *RedisFlag) Predicate() scheduler.Predicate {
	return f.Available
}

func (f *RedisFlag) invalidate() {
	f.mu.Lock()
	f.checkedAt = time.Time{}
	f.mu.Unlock()
}
