package kernel

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStashPutTakeAndDelete(t *testing.T) {
	stash := NewStashCurrentFlow()
	stash.Put(1, 100)

	key, ok := stash.TakeAndDelete(1)
	require.True(t, ok)
	assert.EqualValues(t, 100, key)
	assert.Equal(t, 0, stash.Len())

	_, ok = stash.TakeAndDelete(1)
	assert.False(t, ok)
}

func TestConfigReadyGate(t *testing.T) {
	cfg := &ConfigMap{}
	assert.False(t, cfg.Ready())

	cfg.SetReady(ReadyMagic)
	assert.True(t, cfg.Ready())

	cfg.SetReady(0)
	assert.False(t, cfg.Ready())
}

func TestRateCurveUnconfiguredFailsAllLookups(t *testing.T) {
	curve := &RateCurveMap{}
	_, ok := curve.Get(0)
	assert.False(t, ok)
	_, ok = curve.Get(1)
	assert.False(t, ok)
	_, ok = curve.Get(2)
	assert.False(t, ok)
}

// Concurrency: many goroutines racing on the same flow's cooldown must
// leave a valid deadline behind (spec.md §5 "races ... are benign").
func TestFlowCooldownMapConcurrentWritesLeaveValidDeadline(t *testing.T) {
	cooldown := NewFlowCooldownMap()
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(deadline uint64) {
			defer wg.Done()
			cooldown.Set(1, deadline)
		}(uint64(i) * sec)
	}
	wg.Wait()

	v, ok := cooldown.Get(1)
	require.True(t, ok)
	assert.Greater(t, v, uint64(0))
}

func TestFlowOriginMapConcurrentInsertIsWriteOnce(t *testing.T) {
	origin := NewFlowOriginMap()
	var wg sync.WaitGroup
	results := make([]uint64, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = origin.InsertIfAbsent(1, uint64(idx)+1)
		}(i)
	}
	wg.Wait()

	first := results[0]
	for _, r := range results {
		assert.Equal(t, first, r, "all concurrent callers must observe the same winning origin")
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	cooldown := NewFlowCooldownMap()
	cooldown.Set(1, 100)

	snap := cooldown.Snapshot()
	snap[1] = 999

	v, _ := cooldown.Get(1)
	assert.EqualValues(t, 100, v, "mutating a snapshot must not affect the live map")
}
