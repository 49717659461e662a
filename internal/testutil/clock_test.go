package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionClock_StartsAtZero(t *testing.T) {
	clock := NewVersionClock()
	assert.Equal(t, int64(0), clock.Current())
	assert.Equal(t, int64(1), clock.Next())
	assert.Equal(t, int64(2), clock.Next())
	assert.Equal(t, int64(2), clock.Current())
}

func TestVersionClock_At(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewVersionClockAt(base)

	v := clock.Next()
	assert.Equal(t, base.UnixMicro()+1, v)
	assert.Equal(t, base.Add(time.Microsecond), clock.Now())

	clock.Advance(time.Hour)
	assert.Equal(t, base.Add(time.Hour+time.Microsecond), clock.Now())

	clock.Reset()
	assert.Equal(t, base, clock.Now())
	assert.Equal(t, v, clock.Next())
}

func TestVersionClock_ThreadSafe(t *testing.T) {
	clock := NewVersionClock()
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	results := make([][]int64, numGoroutines)
	for i := range numGoroutines {
		results[i] = make([]int64, callsPerGoroutine)
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for j := range callsPerGoroutine {
				results[idx][j] = clock.Next()
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for _, rs := range results {
		for _, v := range rs {
			require.False(t, seen[v], "duplicate value %d", v)
			seen[v] = true
		}
	}
	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
}
