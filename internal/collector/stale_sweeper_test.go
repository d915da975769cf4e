package collector

import (
	"sync"
	"testing"
	"time"

	"github.com/flowacctd/conntracct/internal/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCollector struct {
	mu     sync.Mutex
	events []kernel.AcctEvent
	closed bool
}

func (r *recordingCollector) Process(ev kernel.AcctEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingCollector) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingCollector) snapshot() []kernel.AcctEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]kernel.AcctEvent, len(r.events))
	copy(out, r.events)
	return out
}

func TestStaleSweeperForwardsEveryEvent(t *testing.T) {
	rec := &recordingCollector{}
	sweeper := NewStaleFlowSweeper(rec)

	sweeper.Process(kernel.AcctEvent{CPtr: 1, PacketsOrig: 1})
	sweeper.Process(kernel.AcctEvent{CPtr: 1, PacketsOrig: 2})

	require.Len(t, rec.snapshot(), 2)
	assert.Equal(t, 1, sweeper.ActiveCount())
}

func TestStaleSweeperMarkEndedStopsTracking(t *testing.T) {
	rec := &recordingCollector{}
	sweeper := NewStaleFlowSweeper(rec)

	sweeper.Process(kernel.AcctEvent{CPtr: 1})
	sweeper.MarkEnded(1)

	assert.Equal(t, 0, sweeper.ActiveCount())
}

func TestStaleSweeperMarkEndedPreventsLateReplay(t *testing.T) {
	rec := &recordingCollector{}
	sweeper := NewStaleFlowSweeper(rec)
	sweeper.timeout = 20 * time.Millisecond

	sweeper.Process(kernel.AcctEvent{CPtr: 7, PacketsOrig: 3})
	sweeper.MarkEnded(7)

	time.Sleep(100 * time.Millisecond)

	assert.Len(t, rec.snapshot(), 1, "a real END routed through MarkEnded must not be replayed by the eviction timer")
}

func TestStaleSweeperEvictsAfterTimeout(t *testing.T) {
	rec := &recordingCollector{}
	sweeper := NewStaleFlowSweeper(rec)
	sweeper.timeout = 20 * time.Millisecond

	sweeper.Process(kernel.AcctEvent{CPtr: 42, PacketsOrig: 5})

	require.Eventually(t, func() bool {
		return sweeper.ActiveCount() == 0
	}, time.Second, 5*time.Millisecond)

	events := rec.snapshot()
	require.Len(t, events, 2, "the original UPDATE plus the synthesized eviction flush")
	assert.EqualValues(t, 5, events[1].PacketsOrig)
}

func TestStaleSweeperCloseFlushesActiveFlows(t *testing.T) {
	rec := &recordingCollector{}
	sweeper := NewStaleFlowSweeper(rec)
	sweeper.Process(kernel.AcctEvent{CPtr: 1})
	sweeper.Process(kernel.AcctEvent{CPtr: 2})

	require.NoError(t, sweeper.Close())

	events := rec.snapshot()
	assert.Len(t, events, 4) // 2 UPDATEs + 2 flushes on close
	assert.True(t, rec.closed)
}
