package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avkeyd/internal/observability"
)

// Rate limiter defaults.
const (
	// DefaultClientTTL is how long an idle client entry is kept.
	DefaultClientTTL = 10 * time.Minute

	// MinCleanupInterval is the minimum interval between cleanup runs.
	MinCleanupInterval = 10 * time.Second

	// MaxCleanupInterval is the maximum interval between cleanup runs.
	MaxCleanupInterval = time.Minute
)

// HeaderRetryAfter tells a throttled client when to try again.
const HeaderRetryAfter = "Retry-After"

// clientEntry holds one client's limiter and its last access time.
type clientEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiterConfig configures a per-client transport rate limiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained per-client rate.
	RequestsPerSecond float64

	// Burst is the per-client burst allowance.
	Burst int

	// ClientTTL overrides DefaultClientTTL when positive.
	ClientTTL time.Duration

	// SkipPaths lists exact request paths exempt from limiting.
	SkipPaths []string

	Logger  observability.Logger
	Metrics *observability.Metrics
}

// RateLimiter applies a token bucket per client IP. Idle client
// entries are dropped after ClientTTL; StartAutoCleanup runs that
// eviction on a ticker until Stop is called.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientEntry

	rps       rate.Limit
	burst     int
	clientTTL time.Duration
	skipPaths map[string]bool

	logger  observability.Logger
	metrics *observability.Metrics

	stopCh  chan struct{}
	stopped bool
}

// NewRateLimiter creates a rate limiter from config. The caller owns
// the lifecycle: start eviction with StartAutoCleanup and release it
// with Stop during shutdown.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Logger == nil {
		config.Logger = observability.NopLogger()
	}

	ttl := config.ClientTTL
	if ttl <= 0 {
		ttl = DefaultClientTTL
	}

	skipPaths := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}

	return &RateLimiter{
		clients:   make(map[string]*clientEntry),
		rps:       rate.Limit(config.RequestsPerSecond),
		burst:     config.Burst,
		clientTTL: ttl,
		skipPaths: skipPaths,
		logger:    config.Logger,
		metrics:   config.Metrics,
		stopCh:    make(chan struct{}),
	}
}

// Allow reports whether one more request from the client is admitted.
// Entry lookup and the lastAccess update share one critical section so
// cleanup cannot evict a client between the two.
func (rl *RateLimiter) Allow(clientIP string) bool {
	now := time.Now()

	rl.mu.Lock()
	entry, ok := rl.clients[clientIP]
	if !ok {
		entry = &clientEntry{
			limiter: rate.NewLimiter(rl.rps, rl.burst),
		}
		rl.clients[clientIP] = entry
	}
	entry.lastAccess = now
	limiter := entry.limiter
	rl.mu.Unlock()

	return limiter.Allow()
}

// Middleware returns the gin handler enforcing the limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		clientIP := c.ClientIP()
		if !rl.Allow(clientIP) {
			if rl.metrics != nil {
				rl.metrics.RecordRateLimitHit(c.FullPath())
			}
			rl.logger.Warn("rate limit exceeded",
				observability.String("client_ip", clientIP),
				observability.String("path", c.Request.URL.Path),
			)

			c.Header(HeaderRetryAfter, "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}

// SetLimits replaces the sustained rate and burst. Existing client
// buckets are replaced with fresh ones so a configuration reload takes
// effect immediately rather than after TTL eviction.
func (rl *RateLimiter) SetLimits(requestsPerSecond float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.rps = rate.Limit(requestsPerSecond)
	rl.burst = burst
	for _, entry := range rl.clients {
		entry.limiter = rate.NewLimiter(rl.rps, burst)
	}
}

// CleanupOldClients drops entries idle for longer than maxAge.
func (rl *RateLimiter) CleanupOldClients(maxAge time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	removed := 0
	for clientIP, entry := range rl.clients {
		if now.Sub(entry.lastAccess) > maxAge {
			delete(rl.clients, clientIP)
			removed++
		}
	}

	if removed > 0 {
		rl.logger.Debug("evicted idle rate limiter clients",
			observability.Int("removed", removed),
			observability.Int("remaining", len(rl.clients)),
		)
	}
}

// StartAutoCleanup starts the eviction goroutine. It runs at half the
// client TTL, clamped between MinCleanupInterval and
// MaxCleanupInterval, until Stop is called.
func (rl *RateLimiter) StartAutoCleanup() {
	rl.mu.Lock()
	if rl.stopped {
		rl.mu.Unlock()
		return
	}
	rl.mu.Unlock()

	interval := rl.clientTTL / 2
	if interval > MaxCleanupInterval {
		interval = MaxCleanupInterval
	}
	if interval < MinCleanupInterval {
		interval = MinCleanupInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.CleanupOldClients(rl.clientTTL)
			case <-rl.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if !rl.stopped {
		rl.stopped = true
		close(rl.stopCh)
	}
}

// clientCount returns the number of tracked client entries.
func (rl *RateLimiter) clientCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
