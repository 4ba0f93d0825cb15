package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avkeyd/internal/core"
)

func testPrincipal(tag byte) core.Principal {
	var p core.Principal
	for i := range p {
		p[i] = tag
	}
	return p
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	t.Parallel()

	p := testPrincipal(0x42)
	ctx := ContextWithPrincipal(context.Background(), p)

	got, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, p, got)
}

func TestPrincipalFromContextMissing(t *testing.T) {
	t.Parallel()

	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)
}

func TestNilMetricsAreSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.attempt(MethodToken, "success", time.Now())
	})
}
