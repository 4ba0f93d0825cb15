package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()

	mr := miniredis.RunT(t)

	config := DefaultRedisConfig()
	config.Address = mr.Addr()

	s, err := NewRedis(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return mr, s
}

func TestDefaultRedisConfig(t *testing.T) {
	config := DefaultRedisConfig()

	assert.Equal(t, "localhost:6379", config.Address)
	assert.Equal(t, "avkeyd:rec:", config.Prefix)
	assert.Equal(t, 10, config.PoolSize)
	assert.Equal(t, 5, config.ConnectionRetries)
	assert.Equal(t, 100*time.Millisecond, config.InitialBackoff)
}

func TestNormalizeRedisConfig(t *testing.T) {
	t.Run("nil config gets defaults", func(t *testing.T) {
		config := normalizeRedisConfig(nil)

		assert.Equal(t, "localhost:6379", config.Address)
		assert.Equal(t, "avkeyd:rec:", config.Prefix)
		assert.Equal(t, 5*time.Second, config.DialTimeout)
	})

	t.Run("set fields survive, unset fields are filled", func(t *testing.T) {
		config := normalizeRedisConfig(&RedisConfig{
			Address: "redis.internal:7000",
			DB:      2,
		})

		assert.Equal(t, "redis.internal:7000", config.Address)
		assert.Equal(t, 2, config.DB)
		assert.Equal(t, "avkeyd:rec:", config.Prefix)
		assert.Equal(t, 10, config.PoolSize)
		assert.Equal(t, 10*time.Second, config.MaxBackoff)
	})
}

func TestNewRedis(t *testing.T) {
	_, s := newTestRedis(t)

	assert.Equal(t, "avkeyd:rec:", s.prefix)
	assert.NotNil(t, s.Client())
	require.NoError(t, s.Ping(context.Background()))
}

func TestNewRedisCustomPrefix(t *testing.T) {
	mr := miniredis.RunT(t)

	config := DefaultRedisConfig()
	config.Address = mr.Addr()
	config.Prefix = "keys:test:"

	s, err := NewRedis(config)
	require.NoError(t, err)
	defer s.Close()

	addr := testAddr(0x01)
	require.NoError(t, s.Apply(context.Background(), Create(addr, []byte(`{"v":1}`))))
	assert.True(t, mr.Exists("keys:test:"+addr.String()))
}

func TestNewRedisConnectionFailure(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	config := DefaultRedisConfig()
	config.Address = "localhost:59999"
	config.DialTimeout = 100 * time.Millisecond
	config.ConnectionRetries = 1
	config.InitialBackoff = 10 * time.Millisecond
	config.MaxBackoff = 20 * time.Millisecond
	config.Metrics = metrics

	s, err := NewRedis(config)
	require.Error(t, err)
	assert.Nil(t, s)
	assert.Contains(t, err.Error(), "failed to connect to redis")
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.connectionErrors), float64(1))
}

func TestRedisCreateAndGet(t *testing.T) {
	mr, s := newTestRedis(t)
	ctx := context.Background()

	addr := testAddr(0x01)
	require.NoError(t, s.Apply(ctx, Create(addr, []byte(`{"record":"project"}`))))

	got, err := s.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"record":"project"}`), got)

	raw, err := mr.Get("avkeyd:rec:" + addr.String())
	require.NoError(t, err)
	assert.Equal(t, `{"record":"project"}`, raw)
}

func TestRedisGetMissing(t *testing.T) {
	_, s := newTestRedis(t)

	addr := testAddr(0x02)
	_, err := s.Get(context.Background(), addr)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), addr.String())
}

func TestRedisGetSeededValue(t *testing.T) {
	mr, s := newTestRedis(t)

	addr := testAddr(0x03)
	require.NoError(t, mr.Set("avkeyd:rec:"+addr.String(), `{"seeded":true}`))

	got, err := s.Get(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"seeded":true}`), got)
}

func TestRedisPreconditions(t *testing.T) {
	ctx := context.Background()
	occupied := testAddr(0x10)
	free := testAddr(0x11)

	tests := []struct {
		name     string
		op       Op
		wantErr  error
		wantAddr string
	}{
		{"create on occupied address", Create(occupied, []byte(`{"v":2}`)), ErrAlreadyExists, occupied.String()},
		{"update on free address", Update(free, []byte(`{"v":2}`)), ErrNotFound, free.String()},
		{"delete on free address", Delete(free), ErrNotFound, free.String()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, s := newTestRedis(t)
			require.NoError(t, s.Apply(ctx, Create(occupied, []byte(`{"v":1}`))))

			err := s.Apply(ctx, tt.op)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), tt.wantAddr)

			got, err := s.Get(ctx, occupied)
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"v":1}`), got)
		})
	}
}

func TestRedisBatchIsAtomic(t *testing.T) {
	mr, s := newTestRedis(t)
	ctx := context.Background()

	existing := testAddr(0x30)
	fresh := testAddr(0x31)
	require.NoError(t, s.Apply(ctx, Create(existing, []byte(`{"v":1}`))))

	// The conflicting create fails the script before any write, so the
	// earlier ops in the batch must not land either.
	err := s.Apply(ctx,
		Create(fresh, []byte(`{"v":1}`)),
		Update(existing, []byte(`{"v":2}`)),
		Create(existing, []byte(`{"v":3}`)),
	)
	require.ErrorIs(t, err, ErrAlreadyExists)

	assert.False(t, mr.Exists("avkeyd:rec:"+fresh.String()))

	got, err := s.Get(ctx, existing)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":1}`), got)
}

func TestRedisBatchMixedKinds(t *testing.T) {
	mr, s := newTestRedis(t)
	ctx := context.Background()

	a := testAddr(0x40)
	b := testAddr(0x41)
	c := testAddr(0x42)

	require.NoError(t, s.Apply(ctx, Create(a, []byte(`{"a":1}`)), Create(b, []byte(`{"b":1}`))))
	require.NoError(t, s.Apply(ctx,
		Update(a, []byte(`{"a":2}`)),
		Delete(b),
		Create(c, []byte(`{"c":1}`)),
	))

	got, err := s.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":2}`), got)

	assert.False(t, mr.Exists("avkeyd:rec:"+b.String()))
	assert.True(t, mr.Exists("avkeyd:rec:"+c.String()))
}

func TestRedisRejectsMalformedBatch(t *testing.T) {
	_, s := newTestRedis(t)

	addr := testAddr(0x50)
	err := s.Apply(context.Background(),
		Create(addr, []byte(`{}`)),
		Update(addr, []byte(`{}`)),
	)
	require.ErrorIs(t, err, ErrInvalidOp)
}

func TestRedisEmptyApply(t *testing.T) {
	_, s := newTestRedis(t)
	require.NoError(t, s.Apply(context.Background()))
}

func TestRedisContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The context check runs before any client call, so no connection is
	// needed.
	s := &Redis{prefix: "test:"}
	addr := testAddr(0x60)

	_, err := s.Get(ctx, addr)
	require.ErrorIs(t, err, context.Canceled)

	err = s.Apply(ctx, Create(addr, []byte(`{}`)))
	require.ErrorIs(t, err, context.Canceled)

	require.ErrorIs(t, s.Ping(ctx), context.Canceled)
}

func TestRedisServerGone(t *testing.T) {
	mr, s := newTestRedis(t)
	mr.Close()

	_, err := s.Get(context.Background(), testAddr(0x70))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	err = s.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping error")
}

func TestRedisCloseIdempotent(t *testing.T) {
	_, s := newTestRedis(t)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestRedisMetricsRecorded(t *testing.T) {
	mr := miniredis.RunT(t)
	metrics := NewMetrics(prometheus.NewRegistry())

	config := DefaultRedisConfig()
	config.Address = mr.Addr()
	config.Metrics = metrics

	s, err := NewRedis(config)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	addr := testAddr(0x80)

	require.NoError(t, s.Apply(ctx, Create(addr, []byte(`{"v":1}`))))
	_, err = s.Get(ctx, addr)
	require.NoError(t, err)
	_, err = s.Get(ctx, testAddr(0x81))
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.Apply(ctx, Create(addr, []byte(`{"v":2}`))), ErrAlreadyExists)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.operationsTotal.WithLabelValues("apply", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.operationsTotal.WithLabelValues("get", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.operationsTotal.WithLabelValues("get", "not_found")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.operationsTotal.WithLabelValues("apply", "conflict")))
}
