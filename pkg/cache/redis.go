package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisOptions configures a Redis-backed cache
type RedisOptions struct {
	URL        string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
}

// RedisCache stores JSON snapshots in Redis
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(opts RedisOptions) (*RedisCache, error) {
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if opts.Password != "" {
		redisOpts.Password = opts.Password
	}
	if opts.DB > 0 {
		redisOpts.DB = opts.DB
	}
	if opts.MaxRetries > 0 {
		redisOpts.MaxRetries = opts.MaxRetries
	}
	if opts.PoolSize > 0 {
		redisOpts.PoolSize = opts.PoolSize
	}

	redisOpts.DialTimeout = 5 * time.Second
	redisOpts.ReadTimeout = 3 * time.Second
	redisOpts.WriteTimeout = 3 * time.Second
	redisOpts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get retrieves and decodes a snapshot
func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if key == "" {
		return false, ErrInvalidKey
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		// If unmarshal fails, delete corrupt data
		c.client.Del(ctx, key)
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}

	return true, nil
}

// Set encodes and stores a snapshot
func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes keys in a single DEL
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client for health checks and rate limiting
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
