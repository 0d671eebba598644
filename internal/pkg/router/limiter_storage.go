package router

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"

	"github.com/ssq-labs/commentpilot/internal/pkg/cache"
	"github.com/ssq-labs/commentpilot/internal/pkg/env"
)

// limiterDatabase keeps limiter counters apart from the job queue (DB 0).
const limiterDatabase = 2

// newLimiterStorage opens a Redis storage for the admin rate limiter on the
// same server as the job queue.
func newLimiterStorage() fiber.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client := cache.GetClient(); client != nil {
		if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: limiterDatabase,
		Reset:    false,
	})
}
