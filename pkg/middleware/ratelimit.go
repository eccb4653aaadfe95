package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"socialfi-engine/pkg/cache"
	"socialfi-engine/pkg/models"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Name       string        // Namespace for the limiter key
	Requests   int           // Number of requests
	Window     time.Duration // Time window
	PerWallet  bool          // Key on wallet when authenticated, IP otherwise
	Message    string
	StatusCode int
}

// Per-endpoint limits. Wallet-keyed limits fall back to the client IP for
// anonymous requests.
var (
	ChallengeRateLimit = RateLimitConfig{
		Name: "auth_challenge", Requests: 10, Window: time.Minute,
		Message: "Too many challenge requests", StatusCode: http.StatusTooManyRequests,
	}
	VerifyRateLimit = RateLimitConfig{
		Name: "auth_verify", Requests: 5, Window: time.Minute,
		Message: "Too many verification attempts", StatusCode: http.StatusTooManyRequests,
	}
	FeedRateLimit = RateLimitConfig{
		Name: "feed_read", Requests: 60, Window: time.Minute,
		Message: "Too many requests, please try again later", StatusCode: http.StatusTooManyRequests,
	}
	FeedRefreshRateLimit = RateLimitConfig{
		Name: "feed_refresh", Requests: 5, Window: time.Minute,
		Message: "Too many refresh requests", StatusCode: http.StatusTooManyRequests,
	}
	TradeRateLimit = RateLimitConfig{
		Name: "trade", Requests: 30, Window: time.Minute, PerWallet: true,
		Message: "Trading rate limit exceeded", StatusCode: http.StatusTooManyRequests,
	}
	PasteURLRateLimit = RateLimitConfig{
		Name: "paste_url", Requests: 10, Window: time.Minute, PerWallet: true,
		Message: "Too many listing requests", StatusCode: http.StatusTooManyRequests,
	}
	LeaderboardRateLimit = RateLimitConfig{
		Name: "leaderboard", Requests: 30, Window: time.Minute,
		Message: "Too many requests, please try again later", StatusCode: http.StatusTooManyRequests,
	}
	PortfolioRateLimit = RateLimitConfig{
		Name: "portfolio", Requests: 30, Window: time.Minute, PerWallet: true,
		Message: "Too many requests, please try again later", StatusCode: http.StatusTooManyRequests,
	}
)

// RateLimitMiddleware is a sliding-window limiter backed by redis, with a
// database fallback when redis is unavailable.
type RateLimitMiddleware struct {
	cache *cache.Cache
	db    *gorm.DB
}

// NewRateLimitMiddleware creates a new rate limiting middleware
func NewRateLimitMiddleware(cache *cache.Cache, db *gorm.DB) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		cache: cache,
		db:    db,
	}
}

// Limit enforces the given configuration on the route.
func (rl *RateLimitMiddleware) Limit(config RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.ClientIP()
		if config.PerWallet {
			if wallet, ok := GetWallet(c); ok {
				subject = wallet
			}
		}
		key := fmt.Sprintf("rate_limit:%s:%s", config.Name, subject)

		if rl.cache != nil {
			allowed, err := rl.checkRedis(c, key, config)
			if err == nil {
				if !allowed {
					c.JSON(config.StatusCode, gin.H{"error": config.Message})
					c.Abort()
					return
				}
				c.Next()
				return
			}
			// Redis failed, fall through to the database.
		}

		allowed, err := rl.checkDB(key, config)
		if err != nil {
			// A broken limiter must not take the service down.
			c.Next()
			return
		}
		if !allowed {
			c.JSON(config.StatusCode, gin.H{"error": config.Message})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (rl *RateLimitMiddleware) checkRedis(c *gin.Context, key string, config RateLimitConfig) (bool, error) {
	ctx := c.Request.Context()
	now := time.Now().Unix()
	expired := now - int64(config.Window.Seconds())

	client := rl.cache.Client()
	if _, err := client.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(expired, 10)).Result(); err != nil {
		return false, err
	}

	count, err := client.ZCard(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count >= int64(config.Requests) {
		return false, nil
	}

	err = client.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now),
		Member: fmt.Sprintf("%d-%d", now, time.Now().UnixNano()),
	}).Err()
	if err != nil {
		return false, err
	}
	if err := client.Expire(ctx, key, config.Window).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (rl *RateLimitMiddleware) checkDB(key string, config RateLimitConfig) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-config.Window)

	rl.db.Where("key = ? AND window_start < ?", key, windowStart).Delete(&models.RateLimitEntry{})

	var entry models.RateLimitEntry
	result := rl.db.Where("key = ? AND window_start >= ?", key, windowStart).First(&entry)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			entry = models.RateLimitEntry{
				Key:         key,
				Count:       1,
				WindowStart: now,
			}
			if err := rl.db.Create(&entry).Error; err != nil {
				return false, err
			}
			return true, nil
		}
		return false, result.Error
	}

	if entry.Count >= config.Requests {
		return false, nil
	}

	if err := rl.db.Model(&entry).Update("count", gorm.Expr("count + 1")).Error; err != nil {
		return false, err
	}
	return true, nil
}
