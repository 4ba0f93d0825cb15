package secrets

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvProviderGetSecret(t *testing.T) {
	t.Setenv("AVKEYD_SECRET_ADMIN_TOKEN", "tok-123")

	p := NewEnvProvider(EnvConfig{}, nil, nil)

	secret, err := p.GetSecret(context.Background(), "admin-token")
	require.NoError(t, err)

	value, ok := secret.GetString(DefaultKey)
	require.True(t, ok)
	assert.Equal(t, "tok-123", value)
	assert.Equal(t, "admin-token", secret.Path)
}

func TestEnvProviderPathNormalization(t *testing.T) {
	tests := []struct {
		path     string
		variable string
	}{
		{"webhook/hmac", "AVKEYD_SECRET_WEBHOOK_HMAC"},
		{"redis.password", "AVKEYD_SECRET_REDIS_PASSWORD"},
		{"jwt-secret", "AVKEYD_SECRET_JWT_SECRET"},
		{"plain", "AVKEYD_SECRET_PLAIN"},
	}

	p := NewEnvProvider(EnvConfig{}, nil, nil)

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Setenv(tt.variable, "expected")

			secret, err := p.GetSecret(context.Background(), tt.path)
			require.NoError(t, err)

			value, ok := secret.GetString(DefaultKey)
			require.True(t, ok)
			assert.Equal(t, "expected", value)
		})
	}
}

func TestEnvProviderJSONValue(t *testing.T) {
	t.Setenv("AVKEYD_SECRET_DB", `{"username":"admin","password":"hunter2"}`)

	p := NewEnvProvider(EnvConfig{}, nil, nil)

	secret, err := p.GetSecret(context.Background(), "db")
	require.NoError(t, err)

	username, ok := secret.GetString("username")
	require.True(t, ok)
	assert.Equal(t, "admin", username)

	password, ok := secret.GetString("password")
	require.True(t, ok)
	assert.Equal(t, "hunter2", password)
}

func TestEnvProviderMalformedJSONFallsBack(t *testing.T) {
	t.Setenv("AVKEYD_SECRET_RAW", `{not-json`)

	p := NewEnvProvider(EnvConfig{}, nil, nil)

	secret, err := p.GetSecret(context.Background(), "raw")
	require.NoError(t, err)

	value, ok := secret.GetString(DefaultKey)
	require.True(t, ok)
	assert.Equal(t, `{not-json`, value)
}

func TestEnvProviderCustomPrefix(t *testing.T) {
	t.Setenv("CUSTOM_TOKEN", "custom-value")

	p := NewEnvProvider(EnvConfig{Prefix: "CUSTOM_"}, nil, nil)

	secret, err := p.GetSecret(context.Background(), "token")
	require.NoError(t, err)

	value, ok := secret.GetString(DefaultKey)
	require.True(t, ok)
	assert.Equal(t, "custom-value", value)
}

func TestEnvProviderMissing(t *testing.T) {
	t.Parallel()

	p := NewEnvProvider(EnvConfig{}, nil, nil)

	_, err := p.GetSecret(context.Background(), "definitely/not/set/anywhere")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestEnvProviderEmptyPath(t *testing.T) {
	t.Parallel()

	p := NewEnvProvider(EnvConfig{}, nil, nil)

	_, err := p.GetSecret(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestEnvProviderHealthAndClose(t *testing.T) {
	t.Parallel()

	p := NewEnvProvider(EnvConfig{}, nil, nil)

	require.NoError(t, p.HealthCheck(context.Background()))
	require.NoError(t, p.Close())
}

func TestEnvProviderMetrics(t *testing.T) {
	t.Setenv("AVKEYD_SECRET_PRESENT", "yes")

	metrics := NewMetrics(prometheus.NewRegistry())
	p := NewEnvProvider(EnvConfig{}, nil, metrics)

	_, err := p.GetSecret(context.Background(), "present")
	require.NoError(t, err)

	_, err = p.GetSecret(context.Background(), "absent")
	require.Error(t, err)

	require.NoError(t, p.HealthCheck(context.Background()))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.operations.WithLabelValues(ProviderEnv, "get", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.operations.WithLabelValues(ProviderEnv, "get", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.healthy.WithLabelValues(ProviderEnv)))
}
