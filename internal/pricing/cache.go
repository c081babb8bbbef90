package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// DefaultCacheKey is the Redis key holding the last live rate.
const DefaultCacheKey = "tracker:price:sol_usd"

// Cache keeps the last known rate for use when the live source fails.
type Cache interface {
	// Get returns the cached rate; ok is false when nothing is cached.
	Get(ctx context.Context) (rate decimal.Decimal, ok bool, err error)
	// Set stores rate for ttl. A zero ttl keeps it until replaced.
	Set(ctx context.Context, rate decimal.Decimal, ttl time.Duration) error
}

// RedisCache stores the rate as a decimal string under one key.
type RedisCache struct {
	client *redis.Client
	key    string
}

// NewRedisCache wraps client. An empty key uses DefaultCacheKey.
func NewRedisCache(client *redis.Client, key string) *RedisCache {
	if key == "" {
		key = DefaultCacheKey
	}
	return &RedisCache{client: client, key: key}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context) (decimal.Decimal, bool, error) {
	val, err := c.client.Get(ctx, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("redis get %s: %w", c.key, err)
	}
	rate, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parse cached rate %q: %w", val, err)
	}
	return rate, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, rate decimal.Decimal, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key, rate.String(), ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", c.key, err)
	}
	return nil
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu        sync.Mutex
	rate      decimal.Decimal
	expiresAt time.Time
	set       bool
	now       func() time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{now: time.Now}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context) (decimal.Decimal, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.set || (!c.expiresAt.IsZero() && c.now().After(c.expiresAt)) {
		return decimal.Zero, false, nil
	}
	return c.rate, true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, rate decimal.Decimal, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rate = rate
	c.set = true
	c.expiresAt = time.Time{}
	if ttl > 0 {
		c.expiresAt = c.now().Add(ttl)
	}
	return nil
}
