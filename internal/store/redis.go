package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/avkeyd/internal/observability"
	"github.com/vyrodovalexey/avkeyd/internal/record"
	"github.com/vyrodovalexey/avkeyd/internal/retry"
)

// applyScript commits a batch of record operations atomically. Every
// precondition is checked before the first write: create requires the
// key to be absent, update and delete require it to be present. A
// violated precondition aborts the whole batch with an EEXISTS or ENOENT
// error reply naming the key.
//
// KEYS[i]    = prefixed record address
// ARGV[2i-1] = operation kind ("create", "update", "delete")
// ARGV[2i]   = record bytes (empty for delete)
var applyScript = redis.NewScript(`
	local n = #KEYS
	for i = 1, n do
		local kind = ARGV[2*i - 1]
		local exists = redis.call('EXISTS', KEYS[i])
		if kind == 'create' and exists == 1 then
			return redis.error_reply('EEXISTS ' .. KEYS[i])
		end
		if kind ~= 'create' and exists == 0 then
			return redis.error_reply('ENOENT ' .. KEYS[i])
		end
	end
	for i = 1, n do
		local kind = ARGV[2*i - 1]
		if kind == 'delete' then
			redis.call('DEL', KEYS[i])
		else
			redis.call('SET', KEYS[i], ARGV[2*i])
		end
	end
	return n
`)

// Redis implements Store on a Redis server. Batches commit through a
// single Lua script, so concurrent writers never observe half a batch.
type Redis struct {
	client  *redis.Client
	prefix  string
	logger  observability.Logger
	metrics *Metrics

	mu     sync.Mutex
	closed bool
}

// RedisConfig holds configuration for the Redis store.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string

	// Connection pool settings
	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	// Timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// InitialBackoff is the initial backoff duration for connection
	// retries.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration for connection retries.
	MaxBackoff time.Duration

	// ConnectionRetries is the number of connection retry attempts.
	ConnectionRetries int

	// Logger for the Redis store.
	Logger observability.Logger

	// Metrics instruments store operations. Nil disables instrumentation.
	Metrics *Metrics
}

// DefaultRedisConfig returns a RedisConfig with default values.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Address:           "localhost:6379",
		Password:          "",
		DB:                0,
		Prefix:            "avkeyd:rec:",
		PoolSize:          10,
		MinIdleConns:      2,
		MaxRetries:        3,
		DialTimeout:       5 * time.Second,
		ReadTimeout:       3 * time.Second,
		WriteTimeout:      3 * time.Second,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		ConnectionRetries: 5,
	}
}

// NewRedis connects to Redis and returns the store. Connection attempts
// back off with decorrelated jitter so a fleet restart does not hammer
// the server.
func NewRedis(config *RedisConfig) (*Redis, error) {
	config = normalizeRedisConfig(config)

	logger := config.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Address,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	s := &Redis{
		client:  client,
		prefix:  config.Prefix,
		logger:  logger,
		metrics: config.Metrics,
	}

	if err := s.connect(config); err != nil {
		_ = client.Close()
		return nil, err
	}

	return s, nil
}

// normalizeRedisConfig fills unset fields from the defaults.
func normalizeRedisConfig(config *RedisConfig) *RedisConfig {
	def := DefaultRedisConfig()
	if config == nil {
		return def
	}

	out := *config
	if out.Address == "" {
		out.Address = def.Address
	}
	if out.Prefix == "" {
		out.Prefix = def.Prefix
	}
	if out.PoolSize <= 0 {
		out.PoolSize = def.PoolSize
	}
	if out.MinIdleConns <= 0 {
		out.MinIdleConns = def.MinIdleConns
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = def.MaxRetries
	}
	if out.DialTimeout <= 0 {
		out.DialTimeout = def.DialTimeout
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = def.ReadTimeout
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = def.WriteTimeout
	}
	if out.InitialBackoff <= 0 {
		out.InitialBackoff = def.InitialBackoff
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = def.MaxBackoff
	}
	if out.ConnectionRetries <= 0 {
		out.ConnectionRetries = def.ConnectionRetries
	}
	return &out
}

// connect pings the server until it answers or the retry budget and
// overall timeout run out.
func (s *Redis) connect(config *RedisConfig) error {
	backoff := retry.NewDecorrelatedJitterBackoff(config.InitialBackoff, config.MaxBackoff)

	totalTimeout := time.Duration(config.ConnectionRetries+1) * config.DialTimeout
	if totalTimeout > 2*time.Minute {
		totalTimeout = 2 * time.Minute
	}

	ctx, cancel := context.WithTimeout(context.Background(), totalTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= config.ConnectionRetries; attempt++ {
		pingCtx, pingCancel := context.WithTimeout(ctx, config.DialTimeout)
		lastErr = s.client.Ping(pingCtx).Err()
		pingCancel()

		if lastErr == nil {
			if attempt > 0 {
				s.logger.Info("redis connection established after retry",
					observability.String("address", config.Address),
					observability.Int("attempt", attempt+1),
				)
			}
			return nil
		}

		s.metrics.connectionError()

		if attempt == config.ConnectionRetries {
			break
		}

		wait := backoff.Next(attempt)
		s.logger.Debug("redis connection failed, retrying",
			observability.String("address", config.Address),
			observability.Int("attempt", attempt+1),
			observability.Int("max_retries", config.ConnectionRetries),
			observability.Duration("backoff", wait),
			observability.Error(lastErr),
		)
		s.metrics.connectionRetry()

		select {
		case <-ctx.Done():
			return fmt.Errorf("connection timeout exceeded during backoff: %w", ctx.Err())
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("failed to connect to redis after %d attempts: %w", config.ConnectionRetries+1, lastErr)
}

// prefixKey renders the storage key for a record address.
func (s *Redis) prefixKey(addr record.Address) string {
	return s.prefix + addr.String()
}

// Get implements Store.
func (s *Redis) Get(ctx context.Context, addr record.Address) ([]byte, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error before redis get: %w", err)
	}

	data, err := s.client.Get(ctx, s.prefixKey(addr)).Bytes()
	if err == redis.Nil {
		s.metrics.observe("get", "not_found", start)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	if err != nil {
		s.metrics.observe("get", "error", start)
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	s.metrics.observe("get", "success", start)
	return data, nil
}

// Apply implements Store. The batch runs inside one Lua script, so
// either every operation takes effect or none does.
func (s *Redis) Apply(ctx context.Context, ops ...Op) error {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error before redis apply: %w", err)
	}

	if len(ops) == 0 {
		return nil
	}
	if err := validateOps(ops); err != nil {
		s.metrics.observe("apply", "invalid", start)
		return err
	}

	keys := make([]string, len(ops))
	argv := make([]interface{}, 0, len(ops)*2)
	for i, op := range ops {
		keys[i] = s.prefixKey(op.Addr)
		argv = append(argv, op.Kind.String(), string(op.Data))
	}

	if _, err := applyScript.Run(ctx, s.client, keys, argv...).Result(); err != nil {
		if key, ok := strings.CutPrefix(err.Error(), "EEXISTS "); ok {
			s.metrics.observe("apply", "conflict", start)
			return fmt.Errorf("%w: %s", ErrAlreadyExists, strings.TrimPrefix(key, s.prefix))
		}
		if key, ok := strings.CutPrefix(err.Error(), "ENOENT "); ok {
			s.metrics.observe("apply", "not_found", start)
			return fmt.Errorf("%w: %s", ErrNotFound, strings.TrimPrefix(key, s.prefix))
		}
		s.metrics.observe("apply", "error", start)
		return fmt.Errorf("redis apply error: %w", err)
	}

	s.metrics.observe("apply", "success", start)
	return nil
}

// Ping implements Store.
func (s *Redis) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error before redis ping: %w", err)
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping error: %w", err)
	}
	return nil
}

// Close implements Store. Close is idempotent.
func (s *Redis) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

// Client returns the underlying Redis client.
func (s *Redis) Client() *redis.Client {
	return s.client
}
