package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client stores checkout responses keyed by client-supplied idempotency keys.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and checks the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func responseKey(key string) string {
	return fmt.Sprintf("idempotency:checkout:%s", key)
}

func lockKey(key string) string {
	return fmt.Sprintf("lock:checkout:%s", key)
}

// GetCachedResponse returns the stored response body for key, if any.
func (c *Client) GetCachedResponse(ctx context.Context, key string) ([]byte, bool, error) {
	body, err := c.rdb.Get(ctx, responseKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}

// SetCachedResponse stores a response body for key with TTL
func (c *Client) SetCachedResponse(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, responseKey(key), body, ttl).Err()
}

// AcquireLock marks key as in flight. It returns false if another request
// holds it.
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, lockKey(key), "1", ttl).Result()
}

// ReleaseLock releases the in-flight marker for key
func (c *Client) ReleaseLock(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, lockKey(key)).Err()
}
