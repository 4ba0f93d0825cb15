// Package middleware provides the gin middleware chain for the keyd
// HTTP server: request identification, logging, metrics, panic
// recovery, transport rate limiting, and caller authentication.
//
// Ordering matters. RequestID runs first so every later stage logs
// under the same ID, Recovery wraps everything that can panic, and the
// rate limiter sits in front of Auth so throttled floods never reach
// the authenticator. The transport rate limiter is per client IP and
// is independent of the per-key usage windows enforced by the core.
package middleware
