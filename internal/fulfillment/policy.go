package fulfillment

import (
	"time"

	"github.com/polkiloo/stockpoints/internal/config"
)

// Policy holds the timing and retry thresholds of a machine.
type Policy struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	DeliveryMode string
}

// PolicyFromConfig builds policy from application configuration.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		PollInterval: cfg.PollInterval,
		PollTimeout:  cfg.PollTimeout,
		MaxAttempts:  cfg.SubmitMaxAttempts,
		BackoffBase:  cfg.BackoffBase,
		BackoffCap:   cfg.BackoffCap,
		DeliveryMode: cfg.DeliveryMode,
	}
}

// Backoff returns the wait after the given failed attempt: base doubled per attempt, capped.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BackoffBase
	for i := 1; i < attempt; i++ {
		if d >= p.BackoffCap/2 {
			return p.BackoffCap
		}
		d *= 2
	}
	if d > p.BackoffCap {
		return p.BackoffCap
	}
	return d
}
