package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avkeyd/internal/clock"
	"github.com/vyrodovalexey/avkeyd/internal/core"
	"github.com/vyrodovalexey/avkeyd/internal/event"
	"github.com/vyrodovalexey/avkeyd/internal/observability"
	"github.com/vyrodovalexey/avkeyd/internal/record"
	"github.com/vyrodovalexey/avkeyd/internal/store"
)

// tracerName identifies service spans.
const tracerName = "avkeyd/internal/service"

// lockStripes is the number of project lock stripes. Must be a power
// of two.
const lockStripes = 64

// Operation names used for spans, metrics and logs.
const (
	opCreateProject     = "create_project"
	opGetProject        = "get_project"
	opTransferAuthority = "transfer_authority"
	opIssueKey          = "issue_key"
	opGetKey            = "get_key"
	opRotateKey         = "rotate_key"
	opUpdateScopes      = "update_scopes"
	opUpdateRateLimit   = "update_rate_limit"
	opRevokeKey         = "revoke_key"
	opSuspendKey        = "suspend_key"
	opReactivateKey     = "reactivate_key"
	opCloseUsage        = "close_usage"
	opVerify            = "verify"
)

// Publisher receives events after their operation committed. *event.Bus
// satisfies it.
type Publisher interface {
	Publish(event.Event)
}

// Config configures a Service.
type Config struct {
	// Store persists records. Required.
	Store store.Store

	// Clock supplies the current slot. Defaults to a system clock.
	Clock clock.Clock

	// Bus receives committed events. Nil disables publishing.
	Bus Publisher

	// Logger for the service.
	Logger observability.Logger

	// Metrics instruments operations. Nil disables.
	Metrics *Metrics

	// Tracer for operation spans. Defaults to the global tracer.
	Tracer trace.Tracer
}

// Service executes key management operations against the store.
type Service struct {
	store   store.Store
	clock   clock.Clock
	bus     Publisher
	logger  observability.Logger
	metrics *Metrics
	tracer  trace.Tracer

	registry  *core.Registry
	lifecycle *core.Lifecycle
	verifier  *core.Verifier

	locks [lockStripes]sync.Mutex
}

// New creates a service.
func New(cfg *Config) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("service config is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("service store is required")
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return &Service{
		store:     cfg.Store,
		clock:     clk,
		bus:       cfg.Bus,
		logger:    logger,
		metrics:   cfg.Metrics,
		tracer:    tracer,
		registry:  core.NewRegistry(),
		lifecycle: core.NewLifecycle(),
		verifier:  core.NewVerifier(),
	}, nil
}

// lockProject acquires the lock stripe for the project address and
// returns the release func. BLAKE2b addresses are uniform, so the
// first byte picks a stripe evenly.
func (s *Service) lockProject(addr record.Address) func() {
	mu := &s.locks[int(addr[0])%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// instrument opens the span for an operation and returns the finish
// func the operation defers with its final error.
func (s *Service) instrument(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "keyd."+op,
		trace.WithAttributes(attribute.String("keyd.operation", op)),
	)
	start := time.Now()

	return ctx, func(err error) {
		if err != nil {
			span.SetAttributes(attribute.String("keyd.result", resultLabel(err)))
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
		s.metrics.operation(op, start, err)
	}
}

// publish emits events for the notifications of a committed operation.
func (s *Service) publish(notifications []core.Notification, slot clock.Slot) {
	if s.bus == nil {
		return
	}
	for _, n := range notifications {
		s.bus.Publish(event.New(n, slot))
	}
}

func (s *Service) loadProject(ctx context.Context, addr record.Address) (*core.Project, error) {
	data, err := s.store.Get(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	return record.DecodeProject(addr, data)
}

func (s *Service) loadKey(ctx context.Context, addr record.Address) (*core.APIKey, error) {
	data, err := s.store.Get(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("load api key: %w", err)
	}
	return record.DecodeAPIKey(addr, data)
}

func (s *Service) loadUsage(ctx context.Context, addr record.Address) (*core.UsageWindow, error) {
	data, err := s.store.Get(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("load usage window: %w", err)
	}
	return record.DecodeUsage(addr, data)
}
