package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avkeyd/internal/clock"
	"github.com/vyrodovalexey/avkeyd/internal/core"
)

// captureSink records delivered events. When entered and gate are set,
// Deliver signals entered and then blocks until gate is closed.
type captureSink struct {
	mu      sync.Mutex
	events  []Event
	entered chan struct{}
	gate    chan struct{}
}

func (s *captureSink) Deliver(_ context.Context, event Event) {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) list() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func revokedEvent(tag byte) Event {
	return New(core.Notification{
		Type:    core.NotifyAPIKeyRevoked,
		Project: testRef(tag),
		APIKey:  testRef(tag + 1),
	}, clock.Slot(1))
}

func TestBusDeliversToAllSinks(t *testing.T) {
	t.Parallel()

	first := &captureSink{}
	second := &captureSink{}
	bus := NewBus(nil, first, second)

	events := []Event{revokedEvent(0x01), revokedEvent(0x02), revokedEvent(0x03)}
	for _, ev := range events {
		bus.Publish(ev)
	}
	require.NoError(t, bus.Close())

	for _, sink := range []*captureSink{first, second} {
		got := sink.list()
		require.Len(t, got, 3)
		for i, ev := range events {
			assert.Equal(t, ev.ID, got[i].ID)
		}
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics(prometheus.NewRegistry())
	sink := &captureSink{
		entered: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
	bus := NewBus(&BusConfig{BufferSize: 1, Metrics: metrics}, sink)

	// First event is picked up by the dispatch loop and blocks inside
	// the sink, the second fills the buffer, the third has nowhere to
	// go.
	bus.Publish(revokedEvent(0x01))
	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch loop never reached the sink")
	}
	bus.Publish(revokedEvent(0x02))
	bus.Publish(revokedEvent(0x03))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.droppedTotal))

	close(sink.gate)
	require.NoError(t, bus.Close())

	assert.Len(t, sink.list(), 2)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.publishedTotal.WithLabelValues(string(core.NotifyAPIKeyRevoked))))
}

func TestBusDepthAndCapacity(t *testing.T) {
	t.Parallel()

	sink := &captureSink{
		entered: make(chan struct{}, 3),
		gate:    make(chan struct{}),
	}
	bus := NewBus(&BusConfig{BufferSize: 4}, sink)

	assert.Equal(t, 4, bus.Capacity())
	assert.Equal(t, 0, bus.Depth())

	// The first event is in flight inside the sink, the next two wait
	// in the buffer.
	bus.Publish(revokedEvent(0x01))
	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch loop never reached the sink")
	}
	bus.Publish(revokedEvent(0x02))
	bus.Publish(revokedEvent(0x03))
	assert.Equal(t, 2, bus.Depth())

	close(sink.gate)
	require.NoError(t, bus.Close())
	assert.Equal(t, 0, bus.Depth())
}

func TestBusPublishAfterClose(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	bus := NewBus(nil, sink)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.NotPanics(t, func() { bus.Publish(revokedEvent(0x01)) })
	assert.Empty(t, sink.list())
}

func TestBusCloseDrainsBufferedEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	bus := NewBus(&BusConfig{BufferSize: 8}, sink)

	for i := byte(0); i < 5; i++ {
		bus.Publish(revokedEvent(i))
	}
	require.NoError(t, bus.Close())

	assert.Len(t, sink.list(), 5)
}
