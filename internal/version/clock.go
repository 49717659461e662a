package version

import (
	"sync/atomic"
	"time"
)

// Clock derives versions from wall-clock time in microseconds.
//
// Next is strictly increasing within a process even when the wall clock
// stalls or steps backwards: it returns max(now, last+1). Separate processes
// draw from the same time base, so their versions interleave by real time
// and collide only within the same microsecond.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	last atomic.Int64
	now  func() time.Time
}

// NewClock creates a clock backed by time.Now.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// NewClockWith creates a clock backed by a custom time source.
func NewClockWith(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// Next returns the next version. Calls are linearizable.
func (c *Clock) Next() int64 {
	for {
		last := c.last.Load()
		next := c.now().UnixMicro()
		if next <= last {
			next = last + 1
		}
		if c.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Current returns the last version handed out without advancing.
func (c *Clock) Current() int64 {
	return c.last.Load()
}

// Time converts a version magnitude back to the wall-clock instant it was
// derived from.
func Time(v int64) time.Time {
	return time.UnixMicro(abs(v)).UTC()
}
