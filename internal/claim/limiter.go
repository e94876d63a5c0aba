package claim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kushalX13/CurbKey/internal/clock"
)

// Limiter counts attempts per key over a window.
type Limiter interface {
	Exceeded(ctx context.Context, key string, max int) (bool, error)
	Record(ctx context.Context, key string) error
	Clear(ctx context.Context, key string) error
}

// MemoryLimiter is a sliding-window limiter for a single process.
type MemoryLimiter struct {
	mu     sync.Mutex
	clock  clock.Clock
	window time.Duration
	hits   map[string][]time.Time
}

func NewMemoryLimiter(clk clock.Clock, window time.Duration) *MemoryLimiter {
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryLimiter{clock: clk, window: window, hits: make(map[string][]time.Time)}
}

func (l *MemoryLimiter) Exceeded(ctx context.Context, key string, max int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pruneLocked(key)) >= max, nil
}

func (l *MemoryLimiter) Record(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hits[key] = append(l.pruneLocked(key), l.clock.Now())
	return nil
}

func (l *MemoryLimiter) Clear(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hits, key)
	return nil
}

func (l *MemoryLimiter) pruneLocked(key string) []time.Time {
	cutoff := l.clock.Now().Add(-l.window)
	hits := l.hits[key]
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	hits = hits[i:]
	if len(hits) == 0 {
		delete(l.hits, key)
		return nil
	}
	l.hits[key] = hits
	return hits
}

// RedisLimiter keeps fixed-window counters in Redis so several replicas share
// one budget.
type RedisLimiter struct {
	client redis.Cmdable
	prefix string
	window time.Duration
}

func NewRedisLimiter(client redis.Cmdable, prefix string, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, window: window}
}

func (l *RedisLimiter) key(key string) string {
	return l.prefix + key
}

func (l *RedisLimiter) Exceeded(ctx context.Context, key string, max int) (bool, error) {
	n, err := l.client.Get(ctx, l.key(key)).Int()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read attempts: %w", err)
	}
	return n >= max, nil
}

func (l *RedisLimiter) Record(ctx context.Context, key string) error {
	k := l.key(key)
	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("count attempt: %w", err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return fmt.Errorf("expire attempts: %w", err)
		}
	}
	return nil
}

func (l *RedisLimiter) Clear(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.key(key)).Err()
}
