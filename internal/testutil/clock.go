package testutil

import (
	"sync"
	"time"

	"github.com/roach88/lattice/internal/version"
)

// VersionClock is a deterministic version.Source.
//
// Unlike version.Clock it never reads the wall clock: the first call to
// Next returns start+1 and every later call adds one, so tests can assert
// exact versions. Advance jumps forward in time for retention tests.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type VersionClock struct {
	mu    sync.Mutex
	start int64
	seq   int64
}

var _ version.Source = (*VersionClock)(nil)

// NewVersionClock creates a clock starting at 0. The first call to Next
// returns 1.
func NewVersionClock() *VersionClock {
	return &VersionClock{}
}

// NewVersionClockAt creates a clock whose versions map to instants just
// after t (see version.Time).
func NewVersionClockAt(t time.Time) *VersionClock {
	start := t.UnixMicro()
	return &VersionClock{start: start, seq: start}
}

// Next returns the next version.
func (c *VersionClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the last version handed out without advancing.
func (c *VersionClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Now returns the instant of the current version.
func (c *VersionClock) Now() time.Time {
	return version.Time(c.Current())
}

// Advance moves the clock forward by d.
func (c *VersionClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq += d.Microseconds()
}

// Reset returns the clock to its starting point.
func (c *VersionClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = c.start
}
