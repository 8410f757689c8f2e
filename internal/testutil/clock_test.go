package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWallClock_StartsAtEpoch(t *testing.T) {
	clock := NewWallClock(time.Second)
	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch.Add(time.Second), clock.Now())
}

func TestWallClock_AdvanceAndReset(t *testing.T) {
	clock := NewWallClock(time.Second)
	clock.Now()
	clock.Advance(time.Hour)
	assert.Equal(t, Epoch.Add(time.Hour+time.Second), clock.Now())

	clock.Reset()
	assert.Equal(t, Epoch, clock.Now())
}

func TestWallClock_ThreadSafe(t *testing.T) {
	clock := NewWallClock(time.Millisecond)
	const numGoroutines = 50
	const callsPerGoroutine = 20

	var mu sync.Mutex
	seen := make(map[time.Time]bool)

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				now := clock.Now()
				mu.Lock()
				seen[now] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, numGoroutines*callsPerGoroutine, "every reading is distinct")
}

func TestIdentity_Deterministic(t *testing.T) {
	a := Identity(t, 1)
	b := Identity(t, 1)
	c := Identity(t, 2)
	assert.Equal(t, a.SessionID(), b.SessionID())
	assert.NotEqual(t, a.SessionID(), c.SessionID())
	assert.NotEqual(t, GroupKey(1).Public(), a.Public())
}
