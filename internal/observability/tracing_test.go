package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewTracer_Disabled(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(TracerConfig{
		ServiceName: "avkeyd-test",
		Enabled:     false,
	})
	require.NoError(t, err)
	require.NotNil(t, tracer)

	// Disabled tracer still produces usable (noop) spans.
	ctx, span := tracer.StartSpan(context.Background(), "verify")
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
	span.End()

	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestNewTracer_EnabledWithoutEndpoint(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(TracerConfig{
		ServiceName:  "avkeyd-test",
		Enabled:      true,
		SamplingRate: 1.0,
	})
	require.NoError(t, err)
	require.NotNil(t, tracer)

	ctx, span := tracer.StartSpan(context.Background(), "issue_key")
	span.End()

	assert.NotNil(t, SpanFromContext(ctx))
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestCreateSampler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rate float64
		want sdktrace.Sampler
	}{
		{name: "always", rate: 1.0, want: sdktrace.AlwaysSample()},
		{name: "above one", rate: 2.5, want: sdktrace.AlwaysSample()},
		{name: "never", rate: 0, want: sdktrace.NeverSample()},
		{name: "negative", rate: -1, want: sdktrace.NeverSample()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sampler := createSampler(tt.rate)
			assert.Equal(t, tt.want.Description(), sampler.Description())
		})
	}

	ratio := createSampler(0.5)
	assert.Contains(t, ratio.Description(), "TraceIDRatioBased")
}

func TestBuildRetryConfig(t *testing.T) {
	t.Parallel()

	t.Run("nil uses defaults", func(t *testing.T) {
		t.Parallel()

		cfg := buildRetryConfig(nil)
		assert.True(t, cfg.Enabled)
		assert.Equal(t, DefaultOTLPRetryInitialInterval, cfg.InitialInterval)
		assert.Equal(t, DefaultOTLPRetryMaxInterval, cfg.MaxInterval)
		assert.Equal(t, DefaultOTLPRetryMaxElapsedTime, cfg.MaxElapsedTime)
	})

	t.Run("zero values get defaults", func(t *testing.T) {
		t.Parallel()

		cfg := buildRetryConfig(&OTLPRetryConfig{Enabled: true})
		assert.Equal(t, DefaultOTLPRetryInitialInterval, cfg.InitialInterval)
		assert.Equal(t, DefaultOTLPRetryMaxInterval, cfg.MaxInterval)
		assert.Equal(t, DefaultOTLPRetryMaxElapsedTime, cfg.MaxElapsedTime)
	})

	t.Run("custom values preserved", func(t *testing.T) {
		t.Parallel()

		cfg := buildRetryConfig(&OTLPRetryConfig{
			Enabled:         false,
			InitialInterval: 2 * DefaultOTLPRetryInitialInterval,
			MaxInterval:     2 * DefaultOTLPRetryMaxInterval,
			MaxElapsedTime:  2 * DefaultOTLPRetryMaxElapsedTime,
		})
		assert.False(t, cfg.Enabled)
		assert.Equal(t, 2*DefaultOTLPRetryInitialInterval, cfg.InitialInterval)
		assert.Equal(t, 2*DefaultOTLPRetryMaxInterval, cfg.MaxInterval)
		assert.Equal(t, 2*DefaultOTLPRetryMaxElapsedTime, cfg.MaxElapsedTime)
	})
}

func TestContextWithSpanIDs(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(TracerConfig{
		ServiceName:  "avkeyd-test",
		Enabled:      true,
		SamplingRate: 1.0,
	})
	require.NoError(t, err)

	ctx, span := tracer.StartSpan(context.Background(), "op")
	defer span.End()

	ctx = ContextWithSpanIDs(ctx, span)
	assert.NotEmpty(t, TraceIDFromContext(ctx))
	assert.NotEmpty(t, SpanIDFromContext(ctx))
}

func TestTraceContextPropagation(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(TracerConfig{
		ServiceName:  "avkeyd-test",
		Enabled:      true,
		SamplingRate: 1.0,
	})
	require.NoError(t, err)

	ctx, span := tracer.StartSpan(context.Background(), "outgoing")
	defer span.End()

	req := httptest.NewRequest(http.MethodPost, "http://example.com/hook", nil)
	InjectTraceContext(ctx, req)
	assert.NotEmpty(t, req.Header.Get("Traceparent"))

	extracted := ExtractTraceContext(context.Background(), req)
	assert.True(t, SpanFromContext(extracted).SpanContext().HasTraceID())
}
