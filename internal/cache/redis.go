package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "weather-finder:cache:"

type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis { return &Redis{rdb: rdb, ttl: ttl} }

func key(k string) string { return keyPrefix + k }

func (c *Redis) Get(ctx context.Context, k string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set is a no-op when the TTL is not positive; Redis would otherwise keep the key forever.
func (c *Redis) Set(ctx context.Context, k string, value []byte) error {
	if c.ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, key(k), value, c.ttl).Err()
}

// Purge removes every cached response and returns how many keys were deleted.
func (c *Redis) Purge(ctx context.Context) (int, error) {
	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	removed := 0
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, iter.Err()
}
