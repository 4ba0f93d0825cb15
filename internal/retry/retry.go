package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Defaults applied by the Config accessors when a field is unset.
const (
	// DefaultMaxRetries is the default number of retries after the first
	// attempt.
	DefaultMaxRetries = 3

	// DefaultInitialBackoff is the default wait after the first failure.
	DefaultInitialBackoff = 100 * time.Millisecond

	// DefaultMaxBackoff is the default cap on the wait between attempts.
	DefaultMaxBackoff = 30 * time.Second

	// DefaultJitterFactor is the default fraction of random spread added
	// to each wait.
	DefaultJitterFactor = 0.25

	// MaxJitterFactor bounds JitterFactor from above.
	MaxJitterFactor = 1.0
)

// Config controls how Do spaces and bounds its attempts. A nil Config and
// the zero value are both usable; the accessors fall back to defaults.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialBackoff is the wait after the first failure.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential growth of the wait.
	MaxBackoff time.Duration

	// JitterFactor adds up to this fraction of random spread to each
	// wait (0.0 to 1.0).
	JitterFactor float64
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   DefaultJitterFactor,
	}
}

// GetMaxRetries returns the effective max retries.
func (c *Config) GetMaxRetries() int {
	if c == nil || c.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return c.MaxRetries
}

// GetInitialBackoff returns the effective initial backoff.
func (c *Config) GetInitialBackoff() time.Duration {
	if c == nil || c.InitialBackoff <= 0 {
		return DefaultInitialBackoff
	}
	return c.InitialBackoff
}

// GetMaxBackoff returns the effective max backoff.
func (c *Config) GetMaxBackoff() time.Duration {
	if c == nil || c.MaxBackoff <= 0 {
		return DefaultMaxBackoff
	}
	return c.MaxBackoff
}

// GetJitterFactor returns the effective jitter factor.
func (c *Config) GetJitterFactor() float64 {
	if c == nil || c.JitterFactor <= 0 {
		return DefaultJitterFactor
	}
	if c.JitterFactor > MaxJitterFactor {
		return MaxJitterFactor
	}
	return c.JitterFactor
}

// RetryableFunc is a function that can be retried.
type RetryableFunc func() error

// ShouldRetryFunc reports whether an error is worth another attempt.
type ShouldRetryFunc func(error) bool

// OnRetryFunc is called before each retry attempt.
type OnRetryFunc func(attempt int, err error, backoff time.Duration)

// Options contains optional retry behavior configuration.
type Options struct {
	// ShouldRetry decides whether an error triggers a retry. When nil,
	// every error does.
	ShouldRetry ShouldRetryFunc

	// OnRetry is called before each retry attempt.
	OnRetry OnRetryFunc
}

// Do runs fn until it succeeds, the retry budget is spent, or ctx is
// done. An error judged non-retryable by opts.ShouldRetry is returned
// immediately. cfg and opts may both be nil.
func Do(ctx context.Context, cfg *Config, fn RetryableFunc, opts *Options) error {
	maxRetries := cfg.GetMaxRetries()
	initial := cfg.GetInitialBackoff()
	limit := cfg.GetMaxBackoff()
	jitter := cfg.GetJitterFactor()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if opts != nil && opts.ShouldRetry != nil && !opts.ShouldRetry(lastErr) {
			return lastErr
		}

		if attempt == maxRetries {
			break
		}

		wait := CalculateBackoff(attempt, initial, limit, jitter)
		if opts != nil && opts.OnRetry != nil {
			opts.OnRetry(attempt+1, lastErr, wait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return lastErr
}

// CalculateBackoff returns the wait before the next attempt: exponential
// growth from initial, plus up to jitterFactor of random spread, capped
// at limit.
func CalculateBackoff(attempt int, initial, limit time.Duration, jitterFactor float64) time.Duration {
	wait := float64(initial) * math.Pow(2, float64(attempt))

	//nolint:gosec // G404: retry spacing does not need a crypto source
	wait += wait * jitterFactor * rand.Float64()

	if wait > float64(limit) {
		wait = float64(limit)
	}

	return time.Duration(wait)
}
