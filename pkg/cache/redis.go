package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"socialfi-engine/pkg/config"
)

// ErrMiss means the key was absent, not that redis failed.
var ErrMiss = errors.New("cache miss")

// Cache wraps the redis client with JSON value helpers.
type Cache struct {
	client *redis.Client
}

// Initialize connects to Redis and verifies the connection.
func Initialize(cfg *config.Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisURL(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.Database,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	})

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logrus.Info("redis connected")
	return &Cache{client: client}, nil
}

// Cache keys constants
const (
	KeyFeed        = "feed:%s:%s:%d"    // feed:<network>:<sort>:<page>
	KeyMarketData  = "market:data:%s"   // market:data:<market_id>
	KeyPostData    = "post:data:%s"     // post:data:<post_id>
	KeyLeaderboard = "leaderboard:%s"   // leaderboard:<metric>
	KeyPortfolio   = "portfolio:%s"     // portfolio:<wallet>
	KeyTrending    = "trending:%s"      // trending:<network>
)

// Cache expiration times
const (
	ExpireFeed        = 30 * time.Second
	ExpireMarketData  = 5 * time.Second
	ExpirePostData    = 60 * time.Second
	ExpireLeaderboard = 60 * time.Second
	ExpirePortfolio   = 15 * time.Second
	ExpireTrending    = 5 * time.Minute
)

// Client exposes the raw redis client for callers that need primitives
// beyond the JSON helpers, such as the rate limiter.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Set stores a JSON-encoded value with expiration.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if err := c.client.Set(ctx, key, jsonValue, expiration).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Get retrieves a JSON-encoded value into dest. Returns ErrMiss when absent.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return ErrMiss
		}
		return fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal value for key %s: %w", key, err)
	}
	return nil
}

// Delete removes keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// DeletePattern removes every key matching a glob pattern. Used to drop all
// cached feed pages after an ingest or a trade.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan pattern %s: %w", pattern, err)
	}
	return c.Delete(ctx, keys...)
}

// HealthCheck pings Redis with a short deadline.
func (c *Cache) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (c *Cache) Close() error {
	return c.client.Close()
}
