package retry

import (
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"
)

// StatusCodeCondition retries on an explicit set of HTTP status codes.
type StatusCodeCondition struct {
	codes map[int]bool
}

// RetryOnStatusCodes creates a condition that retries on the given HTTP
// status codes.
func RetryOnStatusCodes(statusCodes ...int) *StatusCodeCondition {
	codeMap := make(map[int]bool, len(statusCodes))
	for _, code := range statusCodes {
		codeMap[code] = true
	}
	return &StatusCodeCondition{codes: codeMap}
}

// ShouldRetry implements RetryCondition.
func (c *StatusCodeCondition) ShouldRetry(err error, statusCode int) bool {
	return c.codes[statusCode]
}

// RetryableStatusCodes returns the usual transient HTTP failures.
func RetryableStatusCodes() *StatusCodeCondition {
	return RetryOnStatusCodes(
		408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504, // Gateway Timeout
	)
}

// ErrorTypeCondition retries when the error matches one of the targets.
type ErrorTypeCondition struct {
	errors []error
}

// RetryOnErrors creates a condition that retries on specific errors,
// matched with errors.Is.
func RetryOnErrors(errs ...error) *ErrorTypeCondition {
	return &ErrorTypeCondition{errors: errs}
}

// ShouldRetry implements RetryCondition.
func (c *ErrorTypeCondition) ShouldRetry(err error, statusCode int) bool {
	if err == nil {
		return false
	}

	for _, target := range c.errors {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

// NetworkErrorCondition retries on transport-level failures.
type NetworkErrorCondition struct{}

// RetryOnNetworkErrors creates a condition that retries on network
// errors.
func RetryOnNetworkErrors() *NetworkErrorCondition {
	return &NetworkErrorCondition{}
}

// ShouldRetry implements RetryCondition. Specific failure classes are
// checked before the broad net.Error interface, which *net.OpError also
// satisfies and would otherwise shadow.
func (c *NetworkErrorCondition) ShouldRetry(err error, statusCode int) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout() || urlErr.Temporary()
	}

	// Note: net.Error.Temporary is deprecated since Go 1.18, so only
	// timeouts are considered here.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// TimeoutCondition retries only on timeout errors.
type TimeoutCondition struct{}

// RetryOnTimeout creates a condition that retries on timeout errors.
func RetryOnTimeout() *TimeoutCondition {
	return &TimeoutCondition{}
}

// ShouldRetry implements RetryCondition.
func (c *TimeoutCondition) ShouldRetry(err error, statusCode int) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}

	return false
}

// CompositeCondition retries when any member condition does.
type CompositeCondition struct {
	conditions []RetryCondition
}

// RetryOnAny creates a condition that retries if any of the given
// conditions match.
func RetryOnAny(conditions ...RetryCondition) *CompositeCondition {
	return &CompositeCondition{conditions: conditions}
}

// ShouldRetry implements RetryCondition.
func (c *CompositeCondition) ShouldRetry(err error, statusCode int) bool {
	for _, condition := range c.conditions {
		if condition.ShouldRetry(err, statusCode) {
			return true
		}
	}
	return false
}
