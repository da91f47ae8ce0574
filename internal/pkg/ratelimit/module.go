package ratelimit

import (
	"go.uber.org/fx"

	"github.com/polkiloo/stockpoints/internal/config"
)

// Module provides the per-user batch submission limiter.
var Module = fx.Provide(newLimiter)

func newLimiter(cfg *config.Config) Limiter {
	return NewKeyed(cfg.RateLimitRequests, cfg.RateLimitWindow)
}
