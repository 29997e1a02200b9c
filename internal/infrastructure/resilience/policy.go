package resilience

import "time"

// Config tunes the retry loop and the per-operation circuit breakers shared by
// the embedding, extraction, vector store and queue adapters.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

// DefaultConfig favours a few quick retries: ingestion runs are long and a
// stuck embedding call already holds a worker slot.
func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 200 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Second,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// Overlay returns c with every positive field of o applied on top.
// BreakerEnabled is left as in c.
func (c Config) Overlay(o Config) Config {
	c.RetryMaxAttempts = positiveOr(o.RetryMaxAttempts, c.RetryMaxAttempts)
	c.RetryInitialBackoff = positiveOr(o.RetryInitialBackoff, c.RetryInitialBackoff)
	c.RetryMaxBackoff = positiveOr(o.RetryMaxBackoff, c.RetryMaxBackoff)
	c.RetryMultiplier = positiveOr(o.RetryMultiplier, c.RetryMultiplier)
	c.BreakerMinRequests = positiveOr(o.BreakerMinRequests, c.BreakerMinRequests)
	c.BreakerFailureRatio = positiveOr(o.BreakerFailureRatio, c.BreakerFailureRatio)
	c.BreakerOpenTimeout = positiveOr(o.BreakerOpenTimeout, c.BreakerOpenTimeout)
	c.BreakerHalfOpenMaxCalls = positiveOr(o.BreakerHalfOpenMaxCalls, c.BreakerHalfOpenMaxCalls)
	return c
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	out := def.Overlay(c)
	out.BreakerEnabled = c.BreakerEnabled

	out.RetryMaxBackoff = max(out.RetryMaxBackoff, out.RetryInitialBackoff)
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}
	if out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	return out
}

func positiveOr[T int | uint32 | float64 | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}
