package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenAuthenticatorValidation(t *testing.T) {
	t.Parallel()

	principal := testPrincipal(0xA1).String()

	tests := []struct {
		name    string
		tokens  []StaticToken
		wantErr string
	}{
		{
			name:    "no tokens",
			tokens:  nil,
			wantErr: "at least one token is required",
		},
		{
			name:    "invalid principal",
			tokens:  []StaticToken{{Principal: "nope", Token: "value"}},
			wantErr: "token 0: invalid principal",
		},
		{
			name:    "token and digest together",
			tokens:  []StaticToken{{Principal: principal, Token: "value", SHA256: "abcd"}},
			wantErr: "mutually exclusive",
		},
		{
			name:    "neither token nor digest",
			tokens:  []StaticToken{{Principal: principal}},
			wantErr: "token or sha256 is required",
		},
		{
			name:    "digest not hex",
			tokens:  []StaticToken{{Principal: principal, SHA256: "zz"}},
			wantErr: "invalid sha256 digest",
		},
		{
			name:    "digest wrong length",
			tokens:  []StaticToken{{Principal: principal, SHA256: "abcd"}},
			wantErr: "sha256 digest must be 32 bytes",
		},
		{
			name: "second entry reported",
			tokens: []StaticToken{
				{Principal: principal, Token: "value"},
				{Principal: principal},
			},
			wantErr: "token 1:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewTokenAuthenticator(tt.tokens)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTokenAuthenticate(t *testing.T) {
	t.Parallel()

	admin := testPrincipal(0xA1)
	auditor := testPrincipal(0xB2)

	auth, err := NewTokenAuthenticator([]StaticToken{
		{Principal: admin.String(), Token: "admin-token"},
		{Principal: auditor.String(), Token: "auditor-token"},
	})
	require.NoError(t, err)

	ctx := context.Background()

	got, err := auth.Authenticate(ctx, "admin-token")
	require.NoError(t, err)
	assert.Equal(t, admin, got)

	got, err = auth.Authenticate(ctx, "auditor-token")
	require.NoError(t, err)
	assert.Equal(t, auditor, got)

	_, err = auth.Authenticate(ctx, "unknown-token")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestTokenAuthenticateDigestEntry(t *testing.T) {
	t.Parallel()

	principal := testPrincipal(0xC3)
	sum := sha256.Sum256([]byte("hashed-token"))

	auth, err := NewTokenAuthenticator([]StaticToken{
		{Principal: principal.String(), SHA256: hex.EncodeToString(sum[:])},
	})
	require.NoError(t, err)

	got, err := auth.Authenticate(context.Background(), "hashed-token")
	require.NoError(t, err)
	assert.Equal(t, principal, got)
}

func TestTokenAuthenticateUppercaseDigest(t *testing.T) {
	t.Parallel()

	principal := testPrincipal(0xC4)
	sum := sha256.Sum256([]byte("hashed-token"))

	auth, err := NewTokenAuthenticator([]StaticToken{
		{Principal: principal.String(), SHA256: strings.ToUpper(hex.EncodeToString(sum[:]))},
	})
	require.NoError(t, err)

	got, err := auth.Authenticate(context.Background(), "hashed-token")
	require.NoError(t, err)
	assert.Equal(t, principal, got)
}

func TestTokenAuthenticateNearMiss(t *testing.T) {
	t.Parallel()

	auth, err := NewTokenAuthenticator([]StaticToken{
		{Principal: testPrincipal(0xD1).String(), Token: "admin-token"},
	})
	require.NoError(t, err)

	for _, credential := range []string{"admin-token ", "Admin-token", "admin-toke"} {
		_, err := auth.Authenticate(context.Background(), credential)
		assert.ErrorIs(t, err, ErrInvalidCredentials, "credential %q must not match", credential)
	}
}

func TestTokenAuthenticatorMetrics(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics(prometheus.NewRegistry())
	auth, err := NewTokenAuthenticator(
		[]StaticToken{{Principal: testPrincipal(0xD4).String(), Token: "value"}},
		WithTokenMetrics(metrics),
	)
	require.NoError(t, err)

	_, err = auth.Authenticate(context.Background(), "value")
	require.NoError(t, err)
	_, err = auth.Authenticate(context.Background(), "wrong")
	require.Error(t, err)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(metrics.attemptsTotal.WithLabelValues(MethodToken, "success")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(metrics.attemptsTotal.WithLabelValues(MethodToken, "invalid")))
}
