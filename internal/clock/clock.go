// Package clock provides the logical slot clock used for key expiry
// and rate window arithmetic.
//
// A slot is a monotonically non-decreasing counter derived from wall
// time. Components never read wall time directly for domain decisions;
// they take a Clock and pass the observed slot into each operation,
// which keeps temporal behavior deterministic under test.
package clock

import (
	"sync/atomic"
	"time"
)

// Slot is a logical clock value.
type Slot uint64

// DefaultSlotDuration is the wall time covered by one slot.
const DefaultSlotDuration = 400 * time.Millisecond

// Clock supplies the current slot.
type Clock interface {
	Now() Slot
}

// SystemClock derives slots from wall time elapsed since an epoch.
type SystemClock struct {
	epoch        time.Time
	slotDuration time.Duration
}

// Compile-time interface checks.
var (
	_ Clock = (*SystemClock)(nil)
	_ Clock = (*Manual)(nil)
)

// SystemOption configures a SystemClock.
type SystemOption func(*SystemClock)

// WithEpoch sets the instant that maps to slot zero.
func WithEpoch(epoch time.Time) SystemOption {
	return func(c *SystemClock) {
		c.epoch = epoch
	}
}

// WithSlotDuration sets the wall time covered by one slot.
func WithSlotDuration(d time.Duration) SystemOption {
	return func(c *SystemClock) {
		if d > 0 {
			c.slotDuration = d
		}
	}
}

// NewSystemClock creates a system clock. By default slot zero is the
// Unix epoch and each slot covers DefaultSlotDuration.
func NewSystemClock(opts ...SystemOption) *SystemClock {
	c := &SystemClock{
		epoch:        time.Unix(0, 0),
		slotDuration: DefaultSlotDuration,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the current slot. Instants before the epoch map to slot
// zero so the clock never runs backwards past its origin.
func (c *SystemClock) Now() Slot {
	elapsed := time.Since(c.epoch)
	if elapsed < 0 {
		return 0
	}
	return Slot(elapsed / c.slotDuration)
}

// Manual is a test clock whose slot only moves when told to.
type Manual struct {
	slot atomic.Uint64
}

// NewManual creates a manual clock starting at the given slot.
func NewManual(start Slot) *Manual {
	m := &Manual{}
	m.slot.Store(uint64(start))
	return m
}

// Now returns the current slot.
func (m *Manual) Now() Slot {
	return Slot(m.slot.Load())
}

// Set moves the clock to the given slot.
func (m *Manual) Set(s Slot) {
	m.slot.Store(uint64(s))
}

// Advance moves the clock forward by delta slots.
func (m *Manual) Advance(delta uint64) {
	m.slot.Add(delta)
}
