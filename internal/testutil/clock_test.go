package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepClock_DefaultsToEpoch(t *testing.T) {
	clock := NewStepClock(time.Time{}, time.Second)
	assert.Equal(t, Epoch, clock.Current())
}

func TestStepClock_NowAdvancesByStep(t *testing.T) {
	clock := NewStepClock(Epoch, time.Second)

	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch.Add(time.Second), clock.Now())
	assert.Equal(t, Epoch.Add(2*time.Second), clock.Current())
}

func TestStepClock_AdvanceAndReset(t *testing.T) {
	clock := NewStepClock(Epoch, time.Millisecond)

	clock.Advance(time.Hour)
	assert.Equal(t, Epoch.Add(time.Hour), clock.Now())

	clock.Reset()
	assert.Equal(t, Epoch, clock.Now())
}

func TestStepClock_ThreadSafe(t *testing.T) {
	clock := NewStepClock(Epoch, time.Nanosecond)
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make([][]time.Time, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		results[i] = make([]time.Time, callsPerGoroutine)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				results[idx][j] = clock.Now()
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for _, row := range results {
		for _, ts := range row {
			require.False(t, seen[ts.UnixNano()], "duplicate instant %v", ts)
			seen[ts.UnixNano()] = true
		}
	}
	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
}

func TestSequentialIDs(t *testing.T) {
	gen := NewSequentialIDs("n")
	assert.Equal(t, "n-0001", gen.Next())
	assert.Equal(t, "n-0002", gen.Next())

	assert.Equal(t, "id-0001", NewSequentialIDs("").Next())
}
