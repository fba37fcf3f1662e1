package guard

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func TestAcquire_RejectsSecondIntent(t *testing.T) {
	r := New()
	require.NoError(t, r.Acquire(7, t0))

	assert.ErrorIs(t, r.Acquire(7, t0.Add(time.Second)), ErrHeld)
	assert.False(t, r.Adopt(7, t0))

	in, ok := r.Get(7)
	require.True(t, ok)
	assert.Equal(t, Intent{TriggerID: 7, Phase: PhaseStarting, Since: t0}, in)
	assert.Equal(t, 1, r.Len())
}

func TestAdvance(t *testing.T) {
	r := New()
	assert.ErrorIs(t, r.Advance(1, PhaseExecuting, t0), ErrNotHeld)

	require.NoError(t, r.Acquire(1, t0))
	require.NoError(t, r.Advance(1, PhaseExecuting, t0.Add(time.Minute)))

	in, _ := r.Get(1)
	assert.Equal(t, PhaseExecuting, in.Phase)
	assert.Equal(t, t0.Add(time.Minute), in.Since)
	assert.Equal(t, 2*time.Minute, in.Age(t0.Add(3*time.Minute)))
}

func TestAdopt(t *testing.T) {
	r := New()
	assert.True(t, r.Adopt(3, t0))
	assert.False(t, r.Adopt(3, t0.Add(time.Hour)))
	assert.ErrorIs(t, r.Acquire(3, t0), ErrHeld)

	in, _ := r.Get(3)
	assert.Equal(t, PhaseExecuting, in.Phase)
	assert.Equal(t, t0, in.Since)
}

func TestRelease(t *testing.T) {
	r := New()
	require.NoError(t, r.Acquire(1, t0))

	assert.True(t, r.Release(1))
	assert.False(t, r.Release(1))
	assert.False(t, r.Has(1))
	assert.NoError(t, r.Acquire(1, t0), "released id can be acquired again")
}

func TestIDsAndSnapshotSorted(t *testing.T) {
	r := New()
	for _, id := range []uint64{9, 2, 5} {
		require.NoError(t, r.Acquire(id, t0))
	}

	assert.Equal(t, []uint64{2, 5, 9}, r.IDs())
	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, uint64(2), snap[0].TriggerID)
	assert.Equal(t, uint64(9), snap[2].TriggerID)
}

func TestClear(t *testing.T) {
	r := New()
	r.Adopt(1, t0)
	r.Adopt(2, t0)

	assert.Equal(t, 2, r.Clear())
	assert.Zero(t, r.Len())
	assert.Empty(t, r.IDs())
}

func TestAcquire_ConcurrentSingleWinner(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Acquire(42, t0) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, []uint64{42}, r.IDs())
}
