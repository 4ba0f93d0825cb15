package retry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Policy retries operations whose outcome carries an HTTP status code,
// such as webhook deliveries. Conditions decide which failures are worth
// another attempt.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialBackoff is the wait after the first failure.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration

	// BackoffFactor is the per-attempt growth factor.
	BackoffFactor float64

	// Jitter is the random spread fraction (0.0 to 1.0).
	Jitter float64

	// RetryOn lists the conditions that justify a retry. When empty, any
	// error does.
	RetryOn []RetryCondition

	// Logger, when set, records each retry decision at debug level.
	Logger *zap.Logger
}

// RetryCondition judges whether a failed attempt should be repeated.
type RetryCondition interface {
	// ShouldRetry reports whether the attempt should be repeated. Either
	// argument may be zero when the failure carried no error or no
	// status code.
	ShouldRetry(err error, statusCode int) bool
}

// DefaultPolicy retries network failures up to three times.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         0.1,
		RetryOn:        []RetryCondition{RetryOnNetworkErrors()},
	}
}

// NoRetryPolicy gives up after the first attempt.
func NoRetryPolicy() *Policy {
	return &Policy{MaxRetries: 0}
}

// Validate clamps out-of-range fields to usable values.
func (p *Policy) Validate() {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 100 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 10 * time.Second
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = 2.0
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = 0.1
	}
}

// Execute runs fn until it succeeds or the policy gives up, and returns
// the last result and error. A failure no condition wants repeated is
// returned without further attempts.
func (p *Policy) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	p.Validate()

	backoff := NewExponentialBackoff(p.InitialBackoff, p.MaxBackoff, p.BackoffFactor, p.Jitter)

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if attempt == p.MaxRetries || !p.shouldRetry(err, 0) {
			break
		}

		wait := backoff.Next(attempt)
		p.logRetry(attempt, 0, wait, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, lastErr
}

// ExecuteWithStatusCode runs fn until it succeeds with a non-retryable
// status code or the policy gives up. A nil error with a retryable
// status still triggers another attempt; a failure no condition wants
// repeated is returned without further attempts.
func (p *Policy) ExecuteWithStatusCode(
	ctx context.Context,
	fn func() (interface{}, int, error),
) (result interface{}, statusCode int, err error) {
	p.Validate()

	backoff := NewExponentialBackoff(p.InitialBackoff, p.MaxBackoff, p.BackoffFactor, p.Jitter)

	var lastErr error
	var lastStatusCode int

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		default:
		}

		result, statusCode, err := fn()
		if err == nil && !p.isRetryableStatusCode(statusCode) {
			return result, statusCode, nil
		}

		lastErr = err
		lastStatusCode = statusCode

		if attempt == p.MaxRetries || !p.shouldRetry(err, statusCode) {
			break
		}

		wait := backoff.Next(attempt)
		p.logRetry(attempt, statusCode, wait, err)

		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, lastStatusCode, lastErr
}

func (p *Policy) logRetry(attempt, statusCode int, wait time.Duration, err error) {
	if p.Logger == nil {
		return
	}
	p.Logger.Debug("retrying operation",
		zap.Int("attempt", attempt+1),
		zap.Int("max_retries", p.MaxRetries),
		zap.Int("status_code", statusCode),
		zap.Duration("wait", wait),
		zap.Error(err),
	)
}

// shouldRetry reports whether any condition wants another attempt. With
// no conditions configured, any error does.
func (p *Policy) shouldRetry(err error, statusCode int) bool {
	if len(p.RetryOn) == 0 {
		return err != nil
	}

	for _, condition := range p.RetryOn {
		if condition.ShouldRetry(err, statusCode) {
			return true
		}
	}

	return false
}

// isRetryableStatusCode reports whether the status code alone justifies
// another attempt.
func (p *Policy) isRetryableStatusCode(statusCode int) bool {
	for _, condition := range p.RetryOn {
		if condition.ShouldRetry(nil, statusCode) {
			return true
		}
	}
	return false
}

// WithMaxRetries sets the maximum retries.
func (p *Policy) WithMaxRetries(n int) *Policy {
	p.MaxRetries = n
	return p
}

// WithInitialBackoff sets the initial backoff.
func (p *Policy) WithInitialBackoff(d time.Duration) *Policy {
	p.InitialBackoff = d
	return p
}

// WithMaxBackoff sets the maximum backoff.
func (p *Policy) WithMaxBackoff(d time.Duration) *Policy {
	p.MaxBackoff = d
	return p
}

// WithBackoffFactor sets the backoff factor.
func (p *Policy) WithBackoffFactor(f float64) *Policy {
	p.BackoffFactor = f
	return p
}

// WithJitter sets the jitter factor.
func (p *Policy) WithJitter(j float64) *Policy {
	p.Jitter = j
	return p
}

// WithRetryOn sets the retry conditions.
func (p *Policy) WithRetryOn(conditions ...RetryCondition) *Policy {
	p.RetryOn = conditions
	return p
}

// WithLogger sets the logger.
func (p *Policy) WithLogger(logger *zap.Logger) *Policy {
	p.Logger = logger
	return p
}
