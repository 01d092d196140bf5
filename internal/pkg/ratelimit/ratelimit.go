// Package ratelimit builds the API request limiter. Counters live in Redis
// so that every API instance enforces the same budget.
package ratelimit

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/MarketFox/internal/pkg/cache"
	"github.com/ManuelReschke/MarketFox/internal/pkg/env"
	"github.com/ManuelReschke/MarketFox/internal/pkg/usercontext"
)

const (
	defaultMax        = 120
	defaultExpiration = time.Minute
	// cache uses DB 0, the job queue shares it
	defaultStorageDB = 1
)

// Config tunes the limiter. A nil Storage keeps counters in process memory.
type Config struct {
	Max        int
	Expiration time.Duration
	Storage    fiber.Storage
}

// ConfigFromEnv reads RATE_LIMIT_MAX and RATE_LIMIT_WINDOW_SECONDS.
// RATE_LIMIT_STORAGE=memory skips Redis.
func ConfigFromEnv() Config {
	cfg := Config{
		Max:        env.GetEnvInt("RATE_LIMIT_MAX", defaultMax),
		Expiration: time.Duration(env.GetEnvInt("RATE_LIMIT_WINDOW_SECONDS", int(defaultExpiration/time.Second))) * time.Second,
	}
	if env.GetEnv("RATE_LIMIT_STORAGE", "redis") != "memory" {
		cfg.Storage = NewRedisStorage()
	}
	return cfg
}

// NewRedisStorage connects limiter storage to the cache server, on its own
// database.
func NewRedisStorage() fiber.Storage {
	// Get Redis client configuration from existing cache setup
	cacheClient := cache.GetClient()
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		// Prefer password from the underlying client if present
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: env.GetEnvInt("RATE_LIMIT_CACHE_DB", defaultStorageDB),
		Reset:    false,
	})
}

// KeyFor buckets identified callers by user id and anonymous ones by IP.
func KeyFor(c *fiber.Ctx) string {
	if id := c.Get(usercontext.HeaderUserID); id != "" {
		return "user:" + id
	}
	return "ip:" + c.IP()
}

// New returns the limiter middleware. Exhausted callers get JSON 429.
func New(cfg Config) fiber.Handler {
	if cfg.Max <= 0 {
		cfg.Max = defaultMax
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = defaultExpiration
	}
	return limiter.New(limiter.Config{
		Max:          cfg.Max,
		Expiration:   cfg.Expiration,
		KeyGenerator: KeyFor,
		Storage:      cfg.Storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests, slow down",
			})
		},
	})
}
