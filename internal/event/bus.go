package event

import (
	"context"
	"sync"

	"github.com/vyrodovalexey/avkeyd/internal/observability"
)

// DefaultBusBuffer is the publish buffer size used when the config does
// not set one.
const DefaultBusBuffer = 256

// Sink receives events from the bus. Deliver runs on the shared
// dispatch goroutine, so a sink that can stall must bound its own work.
type Sink interface {
	Deliver(ctx context.Context, event Event)
	Close() error
}

// BusConfig configures the event bus.
type BusConfig struct {
	// BufferSize is the capacity of the publish buffer.
	BufferSize int

	// Logger for the bus.
	Logger observability.Logger

	// Metrics instruments publishes and drops. Nil disables.
	Metrics *Metrics
}

// Bus fans events out to sinks from a single dispatch goroutine.
type Bus struct {
	ch      chan Event
	sinks   []Sink
	logger  observability.Logger
	metrics *Metrics

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewBus creates a bus delivering to sinks and starts its dispatch
// loop.
func NewBus(config *BusConfig, sinks ...Sink) *Bus {
	if config == nil {
		config = &BusConfig{}
	}

	buffer := config.BufferSize
	if buffer <= 0 {
		buffer = DefaultBusBuffer
	}

	logger := config.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	b := &Bus{
		ch:      make(chan Event, buffer),
		sinks:   sinks,
		logger:  logger,
		metrics: config.Metrics,
		done:    make(chan struct{}),
	}

	go b.dispatch()

	return b
}

// Publish queues the event for delivery. When the buffer is full the
// event is dropped so callers never stall on a slow sink.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	select {
	case b.ch <- event:
		b.metrics.published(string(event.Type))
	default:
		b.metrics.dropped()
		b.logger.Warn("event buffer full, dropping event",
			observability.String("type", string(event.Type)),
			observability.String("event_id", event.ID),
		)
	}
}

// Depth reports how many events are buffered awaiting dispatch.
func (b *Bus) Depth() int {
	return len(b.ch)
}

// Capacity reports the publish buffer capacity.
func (b *Bus) Capacity() int {
	return cap(b.ch)
}

func (b *Bus) dispatch() {
	defer close(b.done)

	for ev := range b.ch {
		for _, sink := range b.sinks {
			sink.Deliver(context.Background(), ev)
		}
	}
}

// Close stops the bus after delivering everything already buffered.
// Close is idempotent. Sinks are not closed here: their owner closes
// them once the bus is drained.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.ch)
	b.mu.Unlock()

	<-b.done
	return nil
}
