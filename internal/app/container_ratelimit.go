package app

import (
	"time"

	"go.uber.org/dig"

	"service-dispatch/internal/config"
	"service-dispatch/internal/http/middleware/ratelimit"
	"service-dispatch/internal/logx"
)

// rateLimitExempt lists health and scrape endpoints. Stream handshakes are
// exempted by the middleware itself.
var rateLimitExempt = []string{"/ping", "/healthcheck", "/metrics"}

func newRateLimiter(cfg *config.Config, clock ratelimit.Clock) ratelimit.Limiter {
	rl := cfg.RateLimit
	if !rl.Enabled {
		return ratelimit.Unlimited{}
	}
	return ratelimit.NewTokenBucketLimiter(clock, ratelimit.Config{
		Rate:       rl.Rate,
		Burst:      rl.Burst,
		TTL:        rl.TTL,
		MaxBuckets: rl.MaxBuckets,
	})
}

func newRateLimitClock() ratelimit.Clock {
	return ratelimit.ClockFunc(time.Now)
}

type rateLimitIn struct {
	dig.In

	Logger  logx.Logger
	Metrics *appMetrics
	Limiter ratelimit.Limiter
}

func newRateLimitMiddleware(in rateLimitIn) *ratelimit.Middleware {
	return ratelimit.New(in.Logger, in.Metrics.rateLimitExceeded, in.Limiter, rateLimitExempt...)
}
