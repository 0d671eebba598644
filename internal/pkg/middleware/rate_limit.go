package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	maxTrackedSources = 1000
	sourceTTL         = 5 * time.Minute
)

// SourceLimiter keeps one token bucket per source. Idle sources expire.
type SourceLimiter struct {
	limiters *expirable.LRU[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
}

// NewSourceLimiter allows requestsPerMin per source with a burst of a tenth
// of that, at least one.
func NewSourceLimiter(requestsPerMin int) *SourceLimiter {
	burst := requestsPerMin / 10
	if burst < 1 {
		burst = 1
	}
	return &SourceLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](maxTrackedSources, nil, sourceTTL),
		rate:     rate.Limit(float64(requestsPerMin) / 60.0),
		burst:    burst,
	}
}

func (l *SourceLimiter) Allow(source string) bool {
	limiter, ok := l.limiters.Get(source)
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters.Add(source, limiter)
	}
	return limiter.Allow()
}

// RateLimitBySource answers 429 once the caller's IP exhausts its bucket.
// A non-positive limit disables the stage.
func RateLimitBySource(requestsPerMin int) fiber.Handler {
	if requestsPerMin <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	limiter := NewSourceLimiter(requestsPerMin)
	return func(c *fiber.Ctx) error {
		source := c.IP()
		if !limiter.Allow(source) {
			log.Warnf("[Middleware] Rate limit exceeded for %s", source)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited", "message": "Too many requests"})
		}
		return c.Next()
	}
}
