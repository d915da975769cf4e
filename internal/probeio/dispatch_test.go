package probeio

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowacctd/conntracct/internal/kernel"
)

type fakeEmitter struct {
	updates []kernel.AcctEvent
	ends    []kernel.AcctEvent
}

func (f *fakeEmitter) SubmitUpdate(ev kernel.AcctEvent) { f.updates = append(f.updates, ev) }
func (f *fakeEmitter) SubmitEnd(ev kernel.AcctEvent)     { f.ends = append(f.ends, ev) }

type scriptedSource struct {
	out  chan RawFlowEvent
	stop chan struct{}
}

func newScriptedSource(events ...RawFlowEvent) *scriptedSource {
	s := &scriptedSource{out: make(chan RawFlowEvent, len(events)), stop: make(chan struct{})}
	for _, ev := range events {
		s.out <- ev
	}
	return s
}

func (s *scriptedSource) Events() <-chan RawFlowEvent { return s.out }
func (s *scriptedSource) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
		close(s.out)
	}
}

func testTuple() kernel.Tuple {
	return kernel.Tuple{Proto: 6, SrcIP: net.ParseIP("10.0.0.1"), DstIP: net.ParseIP("10.0.0.2"), SrcPort: 80, DstPort: 443}
}

func newTestProbes(emit kernel.Emitter) *kernel.Probes {
	config := &kernel.ConfigMap{}
	config.SetReady(kernel.ReadyMagic)
	curve := &kernel.RateCurveMap{}
	curve.SetCurve(
		kernel.CurvePoint{AgeNS: 0, IntervalNS: 1e9},
		kernel.CurvePoint{AgeNS: 10e9, IntervalNS: 5e9},
		kernel.CurvePoint{AgeNS: 60e9, IntervalNS: 30e9},
	)
	rl := kernel.NewRateLimiter(curve, kernel.NewFlowCooldownMap(), kernel.NewFlowOriginMap())
	sampler := kernel.NewSampler(rl, emit)
	return kernel.NewProbes(config, kernel.NewStashCurrentFlow(), sampler)
}

func TestDispatchRoutesFirstConfirmToSampleUpdate(t *testing.T) {
	emit := &fakeEmitter{}
	probes := newTestProbes(emit)

	block := kernel.NewFlowBlock(1, testTuple()).WithAccounting(kernel.Counters{PacketsOrig: 1})
	source := newScriptedSource(RawFlowEvent{Site: SiteFirstConfirm, Block: block, NowNS: 0})

	d := NewDispatch(source, probes)
	require.Eventually(t, func() bool { return len(emit.updates) == 1 }, time.Second, time.Millisecond)
	d.Stop()

	assert.Empty(t, emit.ends)
}

func TestDispatchRoutesDestroyToSampleEnd(t *testing.T) {
	emit := &fakeEmitter{}
	probes := newTestProbes(emit)

	block := kernel.NewFlowBlock(2, testTuple()).WithAccounting(kernel.Counters{PacketsOrig: 3})
	source := newScriptedSource(RawFlowEvent{Site: SiteDestroy, Block: block, NowNS: 0})

	d := NewDispatch(source, probes)
	require.Eventually(t, func() bool { return len(emit.ends) == 1 }, time.Second, time.Millisecond)
	d.Stop()

	assert.Empty(t, emit.updates)
}

func TestDispatchRoutesRefreshPairThroughStash(t *testing.T) {
	emit := &fakeEmitter{}
	probes := newTestProbes(emit)

	block := kernel.NewFlowBlock(3, testTuple()).WithAccounting(kernel.Counters{PacketsOrig: 5})
	source := newScriptedSource(
		RawFlowEvent{Site: SiteRefreshEntry, Block: block, StashID: 99, NowNS: 0},
		RawFlowEvent{Site: SiteRefreshReturn, Block: block, StashID: 99, NowNS: 0},
	)

	d := NewDispatch(source, probes)
	require.Eventually(t, func() bool { return len(emit.updates) == 1 }, time.Second, time.Millisecond)
	d.Stop()
}

func TestDispatchStopIsIdempotent(t *testing.T) {
	emit := &fakeEmitter{}
	probes := newTestProbes(emit)
	source := newScriptedSource()

	d := NewDispatch(source, probes)
	assert.NotPanics(t, func() {
		d.Stop()
		d.Stop()
	})
}
