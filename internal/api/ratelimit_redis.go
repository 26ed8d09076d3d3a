package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// ──────────────────────────────────────────────────────────────────────
// Distributed Per-(IP, Owner) Rate Limiter (Redis)
//
// RateLimiter's in-memory buckets reset on every process restart and
// don't share state across horizontally-scaled API instances. RedisRateLimiter
// keeps the same (IP, owner) keying but counts requests in fixed windows
// against a shared Redis INCR key, so a caller hammering the endpoint sees
// one consistent limit no matter which instance answers the request.
// ──────────────────────────────────────────────────────────────────────

// RedisRateLimiter enforces a fixed-window per-(IP, owner) request cap
// backed by Redis. Each key/window pair is one INCR key with a TTL equal to
// the window, so expiry is free (Redis drops the key itself) rather than
// needing a cleanup goroutine.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedisRateLimiter creates a limiter allowing `limit` requests per
// `window` per (IP, owner) key, counted against client.
func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, limit: limit, window: window}
}

// Middleware returns a Gin handler enforcing the Redis-backed limit, keyed
// by (IP, owner) the same way RateLimiter is — see ratelimit.go. On any
// Redis error the request is allowed through — a degraded rate limiter is
// preferable to an API outage caused by a cache blip.
func (rl *RedisRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		bucket := c.ClientIP()
		if owner := c.Param("owner"); owner != "" {
			bucket = bucket + ":" + owner
		}
		windowStart := time.Now().Truncate(rl.window)
		key := "ratelimit:" + bucket + ":" + windowStart.Format(time.RFC3339)

		ctx := c.Request.Context()
		count, err := rl.client.Incr(ctx, key).Result()
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			rl.client.Expire(ctx, key, rl.window)
		}

		if int(count) > rl.limit {
			ttl, _ := rl.client.TTL(ctx, key).Result()
			c.Header("Retry-After", ttl.String())
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":      "rate limit exceeded",
				"retryAfter": ttl.String(),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// NewRedisClient dials addr with go-redis's default pool settings. A
// nil return with no error never happens; callers check err.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return client, nil
}
