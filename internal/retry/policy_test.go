package retry

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy(maxRetries int) *Policy {
	return &Policy{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
		Jitter:         0.1,
	}
}

func TestDefaultPolicy(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()

	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, p.InitialBackoff)
	assert.Equal(t, 10*time.Second, p.MaxBackoff)
	assert.Len(t, p.RetryOn, 1)
}

func TestPolicyValidate(t *testing.T) {
	t.Parallel()

	p := &Policy{
		MaxRetries:     -1,
		InitialBackoff: -time.Second,
		MaxBackoff:     -time.Second,
		BackoffFactor:  -1,
		Jitter:         2.0,
	}
	p.Validate()

	assert.Equal(t, 0, p.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, p.InitialBackoff)
	assert.Equal(t, 10*time.Second, p.MaxBackoff)
	assert.Equal(t, 2.0, p.BackoffFactor)
	assert.Equal(t, 0.1, p.Jitter)
}

func TestPolicyExecute(t *testing.T) {
	t.Parallel()

	t.Run("returns the result on success", func(t *testing.T) {
		t.Parallel()

		result, err := fastPolicy(3).Execute(context.Background(), func() (interface{}, error) {
			return "ok", nil
		})

		require.NoError(t, err)
		assert.Equal(t, "ok", result)
	})

	t.Run("retries until success", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		result, err := fastPolicy(3).Execute(context.Background(), func() (interface{}, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("not yet")
			}
			return attempts, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, result)
	})

	t.Run("returns the last error when the budget runs out", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		attempts := 0
		_, err := fastPolicy(2).Execute(context.Background(), func() (interface{}, error) {
			attempts++
			return nil, boom
		})

		require.ErrorIs(t, err, boom)
		assert.Equal(t, 3, attempts)
	})

	t.Run("conditions veto retries", func(t *testing.T) {
		t.Parallel()

		transient := errors.New("transient")
		p := fastPolicy(5).WithRetryOn(RetryOnErrors(transient))

		attempts := 0
		_, err := p.Execute(context.Background(), func() (interface{}, error) {
			attempts++
			return nil, errors.New("permanent")
		})

		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("canceled context stops execution", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		attempts := 0
		_, err := fastPolicy(3).Execute(ctx, func() (interface{}, error) {
			attempts++
			return nil, errors.New("unreachable")
		})

		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, attempts)
	})
}

func TestPolicyExecuteWithStatusCode(t *testing.T) {
	t.Parallel()

	t.Run("returns immediately on a good status", func(t *testing.T) {
		t.Parallel()

		p := fastPolicy(3).WithRetryOn(RetryableStatusCodes())

		attempts := 0
		result, status, err := p.ExecuteWithStatusCode(context.Background(), func() (interface{}, int, error) {
			attempts++
			return "delivered", 200, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 200, status)
		assert.Equal(t, "delivered", result)
		assert.Equal(t, 1, attempts)
	})

	t.Run("retries a retryable status without an error", func(t *testing.T) {
		t.Parallel()

		p := fastPolicy(3).WithRetryOn(RetryableStatusCodes())

		attempts := 0
		result, status, err := p.ExecuteWithStatusCode(context.Background(), func() (interface{}, int, error) {
			attempts++
			if attempts < 3 {
				return nil, 503, nil
			}
			return "delivered", 200, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 200, status)
		assert.Equal(t, "delivered", result)
		assert.Equal(t, 3, attempts)
	})

	t.Run("a client error is not retried", func(t *testing.T) {
		t.Parallel()

		p := fastPolicy(3).WithRetryOn(RetryableStatusCodes())

		attempts := 0
		_, status, err := p.ExecuteWithStatusCode(context.Background(), func() (interface{}, int, error) {
			attempts++
			return nil, 400, errors.New("bad request")
		})

		require.Error(t, err)
		assert.Equal(t, 400, status)
		assert.Equal(t, 1, attempts)
	})

	t.Run("reports the last status when the budget runs out", func(t *testing.T) {
		t.Parallel()

		p := fastPolicy(2).WithRetryOn(RetryableStatusCodes())

		attempts := 0
		_, status, err := p.ExecuteWithStatusCode(context.Background(), func() (interface{}, int, error) {
			attempts++
			return nil, 503, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 503, status)
		assert.Equal(t, 3, attempts)
	})

	t.Run("network errors retry alongside status conditions", func(t *testing.T) {
		t.Parallel()

		p := fastPolicy(3).WithRetryOn(RetryOnAny(RetryableStatusCodes(), RetryOnNetworkErrors()))

		attempts := 0
		_, status, err := p.ExecuteWithStatusCode(context.Background(), func() (interface{}, int, error) {
			attempts++
			if attempts == 1 {
				return nil, 0, &net.OpError{Op: "dial", Err: errors.New("down")}
			}
			return "delivered", 200, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 200, status)
		assert.Equal(t, 2, attempts)
	})
}

func TestPolicyBuilders(t *testing.T) {
	t.Parallel()

	logger := zap.NewNop()
	cond := RetryableStatusCodes()

	p := NoRetryPolicy().
		WithMaxRetries(7).
		WithInitialBackoff(time.Second).
		WithMaxBackoff(time.Minute).
		WithBackoffFactor(3.0).
		WithJitter(0.4).
		WithRetryOn(cond).
		WithLogger(logger)

	assert.Equal(t, 7, p.MaxRetries)
	assert.Equal(t, time.Second, p.InitialBackoff)
	assert.Equal(t, time.Minute, p.MaxBackoff)
	assert.Equal(t, 3.0, p.BackoffFactor)
	assert.Equal(t, 0.4, p.Jitter)
	assert.Len(t, p.RetryOn, 1)
	assert.Same(t, logger, p.Logger)
}

func TestNoRetryPolicy(t *testing.T) {
	t.Parallel()

	attempts := 0
	_, err := NoRetryPolicy().Execute(context.Background(), func() (interface{}, error) {
		attempts++
		return nil, errors.New("once")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
