// Package retry provides retry primitives with configurable backoff for
// calls that leave the process, such as Redis commands, Vault requests,
// and webhook deliveries.
//
// Two entry points cover the common shapes:
//
//   - Do runs a plain function with exponential backoff and jitter.
//   - Policy drives HTTP-style operations where the response status code
//     decides whether another attempt is worth making.
//
// Backoff strategies are pluggable through the Backoff interface and can
// be selected by name from configuration with NewBackoffFromConfig.
//
// # Usage
//
// Execute an operation with retry:
//
//	cfg := retry.DefaultConfig()
//	err := retry.Do(ctx, cfg, func() error {
//	    return callExternalService(ctx)
//	}, nil)
//
// Deliver an HTTP request with status-aware retry:
//
//	policy := retry.DefaultPolicy().
//	    WithRetryOn(retry.RetryOnAny(retry.RetryableStatusCodes(), retry.RetryOnNetworkErrors()))
//	_, status, err := policy.ExecuteWithStatusCode(ctx, send)
package retry
