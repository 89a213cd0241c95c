package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/domainscan/domainscan/pkg/config"
	"github.com/domainscan/domainscan/pkg/errors"
	"github.com/domainscan/domainscan/pkg/logging"
)

// Client wraps the Redis client with the key/value surface the cache
// service uses. Timeouts are kept short so a slow store call cannot
// stall the breaker's failure accounting.
type Client struct {
	client *redis.Client
	config *config.RedisConfig
}

// NewClient creates a new Redis client. A failed initial ping is logged
// but not fatal: the circuit breaker handles outages at call time and
// caching degrades to always-miss.
func NewClient(cfg *config.RedisConfig) (*Client, error) {
	if cfg == nil {
		return nil, errors.NewValidationError("Redis configuration is required")
	}

	opts := &redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		PoolTimeout:     4 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logging.GetLogger().Warn("Redis connection failed, caching degraded until it recovers",
			"addr", cfg.Addr(), "error", err.Error())
	}

	return &Client{
		client: client,
		config: cfg,
	}, nil
}

// NewClientFromRedis wraps an existing go-redis client. Used by tests
// and by callers that manage the connection themselves.
func NewClientFromRedis(rdb *redis.Client) *Client {
	return &Client{client: rdb}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Health checks the Redis connection health
func (c *Client) Health(ctx context.Context) error {
	if c.client == nil {
		return errors.NewInternalError("Redis client is nil")
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return errors.NewInternalError("Redis health check failed").WithCause(err)
	}
	return nil
}

// Client returns the underlying Redis client
func (c *Client) Client() *redis.Client {
	return c.client
}

// Get gets a value by key
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", errors.NewNotFoundError("key")
		}
		return "", errors.NewInternalError("failed to get Redis key").WithCause(err)
	}
	return val, nil
}

// Set sets a key-value pair with expiration
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := c.client.Set(ctx, key, value, expiration).Err(); err != nil {
		return errors.NewInternalError("failed to set Redis key").WithCause(err)
	}
	return nil
}

// Del deletes keys and returns the number removed
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	count, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, errors.NewInternalError("failed to delete keys").WithCause(err)
	}
	return count, nil
}

// Keys returns all keys matching the pattern
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := c.client.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, errors.NewInternalError("failed to get Redis keys").WithCause(err)
	}
	return keys, nil
}

// Exists checks how many of the given keys exist
func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	count, err := c.client.Exists(ctx, keys...).Result()
	if err != nil {
		return 0, errors.NewInternalError("failed to check key existence").WithCause(err)
	}
	return count, nil
}

// TTL returns the remaining time to live of a key. A key with no
// expiration reports a negative duration, matching Redis semantics.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, errors.NewInternalError("failed to get Redis key TTL").WithCause(err)
	}
	return ttl, nil
}
