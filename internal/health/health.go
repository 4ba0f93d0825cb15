package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/avkeyd/internal/observability"
)

// Probe timeouts.
const (
	// DefaultReadinessTimeout bounds one readiness probe including all
	// checks.
	DefaultReadinessTimeout = 5 * time.Second

	// DefaultHealthTimeout bounds one detailed health probe.
	DefaultHealthTimeout = 10 * time.Second
)

// Status classifies a check result.
type Status string

const (
	// StatusHealthy indicates the component is fully operational.
	StatusHealthy Status = "healthy"

	// StatusDegraded indicates the component works but is impaired.
	StatusDegraded Status = "degraded"

	// StatusUnhealthy indicates the component cannot serve.
	StatusUnhealthy Status = "unhealthy"
)

// Check is the result of one registered check.
type Check struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// CheckFunc probes one dependency. The context carries the probe
// deadline; a check that can block must honor it.
type CheckFunc func(ctx context.Context) Check

// HealthResponse is the detailed health probe body.
type HealthResponse struct {
	Status    Status           `json:"status"`
	Version   string           `json:"version,omitempty"`
	Uptime    string           `json:"uptime,omitempty"`
	Draining  bool             `json:"draining,omitempty"`
	Checks    map[string]Check `json:"checks,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// ReadinessResponse is the readiness probe body.
type ReadinessResponse struct {
	Status    Status           `json:"status"`
	Draining  bool             `json:"draining,omitempty"`
	Checks    map[string]Check `json:"checks,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Checker aggregates registered checks into probe responses.
type Checker struct {
	version   string
	startTime time.Time
	logger    observability.Logger

	mu     sync.RWMutex
	checks map[string]CheckFunc

	draining atomic.Bool

	readinessTimeout time.Duration
	healthTimeout    time.Duration
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithReadinessTimeout sets the readiness probe timeout.
func WithReadinessTimeout(d time.Duration) CheckerOption {
	return func(c *Checker) {
		if d > 0 {
			c.readinessTimeout = d
		}
	}
}

// WithHealthTimeout sets the detailed health probe timeout.
func WithHealthTimeout(d time.Duration) CheckerOption {
	return func(c *Checker) {
		if d > 0 {
			c.healthTimeout = d
		}
	}
}

// NewChecker creates a checker reporting the given version.
func NewChecker(version string, logger observability.Logger, opts ...CheckerOption) *Checker {
	if logger == nil {
		logger = observability.NopLogger()
	}
	c := &Checker{
		version:          version,
		startTime:        time.Now(),
		logger:           logger,
		checks:           make(map[string]CheckFunc),
		readinessTimeout: DefaultReadinessTimeout,
		healthTimeout:    DefaultHealthTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterCheck adds a named check. Registering an existing name
// replaces the previous check.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// UnregisterCheck removes a named check.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// SetDraining marks the daemon as shutting down. A draining checker
// reports not ready so load balancers stop sending new requests while
// in-flight ones finish.
func (c *Checker) SetDraining(draining bool) {
	if c.draining.Swap(draining) != draining {
		c.logger.Info("readiness draining state changed",
			observability.Bool("draining", draining),
		)
	}
}

// IsDraining reports whether the daemon is shutting down.
func (c *Checker) IsDraining() bool {
	return c.draining.Load()
}

// Health runs every check and returns the detailed status with version
// and uptime.
func (c *Checker) Health(ctx context.Context) HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	status, checks := c.runChecks(ctx)
	return HealthResponse{
		Status:    status,
		Version:   c.version,
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Draining:  c.IsDraining(),
		Checks:    checks,
		Timestamp: time.Now().UTC(),
	}
}

// Readiness runs every check and reports whether the daemon should
// receive traffic. Draining forces unhealthy regardless of check
// results.
func (c *Checker) Readiness(ctx context.Context) ReadinessResponse {
	ctx, cancel := context.WithTimeout(ctx, c.readinessTimeout)
	defer cancel()

	status, checks := c.runChecks(ctx)
	if c.IsDraining() {
		status = StatusUnhealthy
	}
	return ReadinessResponse{
		Status:    status,
		Draining:  c.IsDraining(),
		Checks:    checks,
		Timestamp: time.Now().UTC(),
	}
}

// runChecks evaluates all registered checks and folds their results
// into an overall status: any unhealthy check wins, then degraded.
func (c *Checker) runChecks(ctx context.Context) (Status, map[string]Check) {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checks[name] = fn
	}
	c.mu.RUnlock()

	overall := StatusHealthy
	results := make(map[string]Check, len(checks))
	for name, fn := range checks {
		check := fn(ctx)
		results[name] = check

		switch check.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
			c.logger.Warn("health check failed",
				observability.String("check", name),
				observability.String("message", check.Message),
			)
		case StatusDegraded:
			if overall != StatusUnhealthy {
				overall = StatusDegraded
			}
		}
	}
	return overall, results
}
