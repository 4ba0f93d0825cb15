// Package observability provides logging, metrics, and tracing
// functionality for the key service.
//
// This package implements the three pillars of observability:
// structured logging via zap, Prometheus metrics collection, and
// distributed tracing via OpenTelemetry with OTLP export.
//
// # Logging
//
// The Logger interface provides structured logging:
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("key issued",
//	    observability.String("project_id", id),
//	    observability.Int("key_index", 3),
//	)
//
// # Metrics
//
// Prometheus metrics for HTTP requests and rate limiting, served from
// a private registry:
//
//	metrics := observability.NewMetrics("avkeyd")
//	handler := metrics.Handler()
//
// # Tracing
//
// OpenTelemetry distributed tracing with OTLP export:
//
//	tracer, err := observability.NewTracer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tracer.Shutdown(ctx)
package observability
