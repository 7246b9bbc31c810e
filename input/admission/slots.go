// Package admission provides connection-count and per-source rate limiting applied
// before any client data is accepted
package admission

import (
	"sync/atomic"

	"github.com/relex/gotils/promexporter/promreg"
)

// ConnectionSlots bounds the total number of concurrent connections
//
// The counter is atomic; acquisition never blocks
type ConnectionSlots struct {
	capacity int32
	active   int32
	metrics  slotMetrics
}

// Slot is a held connection slot; it must be released exactly once per accepted
// connection regardless of how the handler terminates
type Slot struct {
	owner    *ConnectionSlots
	released int32
}

// NewConnectionSlots creates a slot pool with the given capacity
func NewConnectionSlots(capacity int, metricCreator promreg.MetricCreator) *ConnectionSlots {
	return &ConnectionSlots{
		capacity: int32(capacity),
		active:   0,
		metrics:  newSlotMetrics(metricCreator),
	}
}

// TryAcquire attempts to take a slot, returning nil if the pool is exhausted
func (slots *ConnectionSlots) TryAcquire() *Slot {
	for {
		current := atomic.LoadInt32(&slots.active)
		if current >= slots.capacity {
			slots.metrics.OnRejected()
			return nil
		}
		if atomic.CompareAndSwapInt32(&slots.active, current, current+1) {
			slots.metrics.OnAcquired()
			return &Slot{owner: slots}
		}
	}
}

// Active returns the number of slots currently held
func (slots *ConnectionSlots) Active() int {
	return int(atomic.LoadInt32(&slots.active))
}

// Release returns the slot to the pool; calling it more than once is a no-op
func (slot *Slot) Release() {
	if !atomic.CompareAndSwapInt32(&slot.released, 0, 1) {
		return
	}
	atomic.AddInt32(&slot.owner.active, -1)
	slot.owner.metrics.OnReleased()
}
