package retry

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Backoff computes the wait before a retry attempt.
type Backoff interface {
	// Next returns the wait before the given attempt. Attempts count
	// from zero.
	Next(attempt int) time.Duration

	// Reset returns the strategy to its initial state.
	Reset()
}

// ExponentialBackoff grows the wait by a constant factor per attempt,
// with an optional symmetric jitter band around the computed value.
type ExponentialBackoff struct {
	initial time.Duration
	max     time.Duration
	factor  float64
	jitter  float64
}

// NewExponentialBackoff creates an exponential backoff. jitter is the
// half-width of the random band as a fraction of the computed wait.
func NewExponentialBackoff(initial, max time.Duration, factor, jitter float64) *ExponentialBackoff {
	return &ExponentialBackoff{
		initial: initial,
		max:     max,
		factor:  factor,
		jitter:  jitter,
	}
}

// Next implements Backoff.
func (b *ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	wait := float64(b.initial) * math.Pow(b.factor, float64(attempt))
	if wait > float64(b.max) {
		wait = float64(b.max)
	}

	if b.jitter > 0 {
		band := wait * b.jitter
		//nolint:gosec // G404: retry spacing does not need a crypto source
		wait += rand.Float64()*2*band - band
	}

	if wait < 0 {
		wait = 0
	}

	return time.Duration(wait)
}

// Reset implements Backoff. ExponentialBackoff keeps no state.
func (b *ExponentialBackoff) Reset() {}

// ConstantBackoff waits the same interval before every attempt.
type ConstantBackoff struct {
	interval time.Duration
}

// NewConstantBackoff creates a constant backoff.
func NewConstantBackoff(interval time.Duration) *ConstantBackoff {
	return &ConstantBackoff{interval: interval}
}

// Next implements Backoff.
func (b *ConstantBackoff) Next(attempt int) time.Duration {
	return b.interval
}

// Reset implements Backoff. ConstantBackoff keeps no state.
func (b *ConstantBackoff) Reset() {}

// DecorrelatedJitterBackoff implements the AWS decorrelated jitter
// strategy: each wait is drawn between the base interval and three times
// the previous wait. Next is safe for concurrent use.
type DecorrelatedJitterBackoff struct {
	initial time.Duration
	max     time.Duration

	mu      sync.Mutex
	current time.Duration
}

// NewDecorrelatedJitterBackoff creates a decorrelated jitter backoff.
func NewDecorrelatedJitterBackoff(initial, max time.Duration) *DecorrelatedJitterBackoff {
	return &DecorrelatedJitterBackoff{
		initial: initial,
		max:     max,
		current: initial,
	}
}

// Next implements Backoff.
func (b *DecorrelatedJitterBackoff) Next(attempt int) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if attempt == 0 {
		b.current = b.initial
		return b.current
	}

	// wait = min(cap, random_between(base, previous * 3))
	low := float64(b.initial)
	high := float64(b.current) * 3

	//nolint:gosec // G404: retry spacing does not need a crypto source
	wait := low + rand.Float64()*(high-low)
	if wait > float64(b.max) {
		wait = float64(b.max)
	}

	b.current = time.Duration(wait)
	return b.current
}

// Reset implements Backoff.
func (b *DecorrelatedJitterBackoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
}

// BackoffType selects a strategy by name in configuration.
type BackoffType string

const (
	// BackoffTypeExponential grows the wait by a constant factor per
	// attempt with optional jitter.
	BackoffTypeExponential BackoffType = "exponential"

	// BackoffTypeDecorrelatedJitter spreads retries across clients,
	// which suits shared dependencies such as Redis and Vault.
	BackoffTypeDecorrelatedJitter BackoffType = "decorrelated_jitter"

	// BackoffTypeConstant waits the same interval before every attempt.
	BackoffTypeConstant BackoffType = "constant"
)

// BackoffConfig describes a backoff strategy in configuration form.
type BackoffConfig struct {
	// Type names the strategy.
	Type BackoffType

	// InitialInterval is the first wait.
	InitialInterval time.Duration

	// MaxInterval caps every wait.
	MaxInterval time.Duration

	// Multiplier is the per-attempt growth factor for exponential
	// backoff.
	Multiplier float64

	// Jitter is the random spread fraction for exponential backoff.
	Jitter float64
}

// DefaultBackoffConfig returns decorrelated jitter with moderate bounds.
func DefaultBackoffConfig() *BackoffConfig {
	return &BackoffConfig{
		Type:            BackoffTypeDecorrelatedJitter,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		Jitter:          0.2,
	}
}

// ExternalServiceBackoffConfig returns bounds suited to reconnecting to
// backing services such as Redis and Vault, where longer waits are
// acceptable.
func ExternalServiceBackoffConfig() *BackoffConfig {
	return &BackoffConfig{
		Type:            BackoffTypeDecorrelatedJitter,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     60 * time.Second,
		Multiplier:      2.0,
		Jitter:          0.3,
	}
}

// NewBackoffFromConfig builds the configured strategy. Unknown types fall
// back to decorrelated jitter.
func NewBackoffFromConfig(config *BackoffConfig) Backoff {
	if config == nil {
		config = DefaultBackoffConfig()
	}

	switch config.Type {
	case BackoffTypeExponential:
		return NewExponentialBackoff(
			config.InitialInterval,
			config.MaxInterval,
			config.Multiplier,
			config.Jitter,
		)
	case BackoffTypeConstant:
		return NewConstantBackoff(config.InitialInterval)
	default:
		return NewDecorrelatedJitterBackoff(
			config.InitialInterval,
			config.MaxInterval,
		)
	}
}
