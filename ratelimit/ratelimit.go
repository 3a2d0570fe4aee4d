// Package ratelimit provides fixed-window request limiters.
//
// Memory keeps counters in process; Redis shares them between server
// instances through INCR + EXPIRE on a per-window key.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether another request for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Backend() string
}

// =============================================================================
// MEMORY
// =============================================================================

type bucket struct {
	start time.Time
	count int
}

// Memory is an in-process fixed-window limiter. Safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	buckets map[string]*bucket
}

// NewMemory allows limit requests per key in every window. A limit or
// window <= 0 disables limiting.
func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{
		limit:   limit,
		window:  window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (m *Memory) Backend() string { return "memory" }

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	if m.limit <= 0 || m.window <= 0 {
		return true, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok || now.Sub(b.start) >= m.window {
		m.sweep(now)
		b = &bucket{start: now}
		m.buckets[key] = b
	}
	if b.count >= m.limit {
		return false, nil
	}
	b.count++
	return true, nil
}

// sweep drops expired buckets so idle keys do not accumulate.
func (m *Memory) sweep(now time.Time) {
	for k, b := range m.buckets {
		if now.Sub(b.start) >= m.window {
			delete(m.buckets, k)
		}
	}
}

// =============================================================================
// REDIS
// =============================================================================

// Redis is a fixed-window limiter whose counters live in Redis.
type Redis struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedis shares counters through client. A limit or window <= 0 disables
// limiting.
func NewRedis(client *redis.Client, limit int, window time.Duration) *Redis {
	return &Redis{
		client: client,
		limit:  limit,
		window: window,
		prefix: "ratelimit:",
		now:    time.Now,
	}
}

func (r *Redis) Backend() string { return "redis" }

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	if r.limit <= 0 || r.window <= 0 {
		return true, nil
	}
	slot := r.now().UnixNano() / int64(r.window)
	k := fmt.Sprintf("%s%s:%d", r.prefix, key, slot)

	pipe := r.client.Pipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit counter: %w", err)
	}
	return incr.Val() <= int64(r.limit), nil
}

// NewRedisClient connects to addr and verifies it answers PING.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return client, nil
}
