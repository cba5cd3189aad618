// Package idempotency claims webhook event keys so a redelivered event is
// processed once. Both stores satisfy provider.WebhookDeduper.
package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultTTL is how long a claimed key blocks redeliveries
const DefaultTTL = 24 * time.Hour

const keyPrefix = "paykit:webhook:"

// sweepInterval bounds how often MemoryStore scans for expired claims
const sweepInterval = time.Minute

// RedisStore claims keys with SETNX so every API instance sharing the Redis
// database sees the same claims
type RedisStore struct {
	cli *redis.Client
	ttl time.Duration
}

// NewRedisClient connects to the Redis server at url
// (redis://[:password@]host:port/db) and checks it with a PING
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return cli, nil
}

// NewRedisStore returns a store backed by cli. A ttl <= 0 uses DefaultTTL.
func NewRedisStore(cli *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{cli: cli, ttl: ttl}
}

// Key returns the Redis key used for an event key
func (s *RedisStore) Key(key string) string {
	return keyPrefix + key
}

// Claim reports whether key was unclaimed and claims it
func (s *RedisStore) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := s.cli.SetNX(ctx, s.Key(key), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claiming %s: %w", key, err)
	}
	return ok, nil
}

// Release drops the claim on key
func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.cli.Del(ctx, s.Key(key)).Err(); err != nil {
		return fmt.Errorf("releasing %s: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.cli.Ping(ctx).Err()
}

// Close closes the underlying client
func (s *RedisStore) Close() error {
	return s.cli.Close()
}

// MemoryStore keeps claims in process memory. Claims are lost on restart
// and are not shared between instances.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryStore returns an empty in-memory store. A ttl <= 0 uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Claim reports whether key was unclaimed or expired and claims it
func (s *MemoryStore) Claim(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expires, ok := s.entries[key]; ok && now.Before(expires) {
		return false, nil
	}
	if now.Sub(s.lastSweep) >= sweepInterval {
		s.sweep(now)
	}
	s.entries[key] = now.Add(s.ttl)
	return true, nil
}

// Release drops the claim on key
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of live claims
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep(s.now())
	return len(s.entries)
}

// sweep drops expired claims; callers hold mu
func (s *MemoryStore) sweep(now time.Time) {
	s.lastSweep = now
	for key, expires := range s.entries {
		if !now.Before(expires) {
			delete(s.entries, key)
		}
	}
}
