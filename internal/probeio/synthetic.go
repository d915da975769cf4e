package probeio

import (
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/flowacctd/conntracct/internal/kernel"
)

// SyntheticConfig controls Synthetic's flow generation.
type SyntheticConfig struct {
	// NumFlows is how many distinct flows to keep alive at once.
	NumFlows int
	// Tick is how often new counter activity and possible flow churn is
	// generated.
	Tick time.Duration
	// FlowLifetime bounds how long a flow survives before Synthetic tears
	// it down and replaces it with a fresh one.
	FlowLifetime time.Duration
	// Seed seeds the PRNG; zero is treated as seed 1.
	Seed int64
}

func (c SyntheticConfig) withDefaults() SyntheticConfig {
	if c.NumFlows <= 0 {
		c.NumFlows = 8
	}
	if c.Tick <= 0 {
		c.Tick = 250 * time.Millisecond
	}
	if c.FlowLifetime <= 0 {
		c.FlowLifetime = 2 * time.Minute
	}
	return c
}

// Synthetic is a deterministic, self-contained FlowSource used for local
// operation without a live conntrack table and for integration tests. It
// fabricates a fixed-size pool of flows, drives their counters forward on
// every tick, and occasionally retires one and confirms a new one in its
// place — enough churn to exercise all four attachment sites without
// depending on any real kernel state.
type Synthetic struct {
	cfg SyntheticConfig
	rng *rand.Rand

	out  chan RawFlowEvent
	done chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	flows   map[kernel.FlowKey]*syntheticFlow
	nextKey kernel.FlowKey
	stash   uint64
}

type syntheticFlow struct {
	block   *kernel.FlowBlock
	bornAt  time.Time
	pending bool // RefreshEntry fired, RefreshReturn not yet
}

// NewSynthetic starts generating events immediately; call Stop to end it.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}
	s := &Synthetic{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)),
		out:   make(chan RawFlowEvent, 256),
		done:  make(chan struct{}),
		flows: make(map[kernel.FlowKey]*syntheticFlow),
	}
	for i := 0; i < cfg.NumFlows; i++ {
		s.spawn(time.Now())
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *Synthetic) Events() <-chan RawFlowEvent { return s.out }

func (s *Synthetic) Stop() {
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}
	s.wg.Wait()
	close(s.out)
}

func (s *Synthetic) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.step(now)
		}
	}
}

func (s *Synthetic) step(now time.Time) {
	s.mu.Lock()
	flows := make([]*syntheticFlow, 0, len(s.flows))
	for _, f := range s.flows {
		flows = append(flows, f)
	}
	s.mu.Unlock()

	nowNS := uint64(now.UnixNano())
	for _, f := range flows {
		if now.Sub(f.bornAt) > s.cfg.FlowLifetime {
			s.retire(f, nowNS)
			s.spawn(now)
			continue
		}
		s.refresh(f, nowNS)
	}
}

func (s *Synthetic) spawn(now time.Time) {
	s.mu.Lock()
	key := s.nextKey
	s.nextKey++
	s.mu.Unlock()

	block := kernel.NewFlowBlock(key, randomTuple(s.rng)).
		WithAccounting(kernel.Counters{}).
		WithTimestamp(uint64(now.UnixNano())).
		WithNetNS(4026531992). // the default netns inode on most Linux hosts
		WithMark(0)

	f := &syntheticFlow{block: block, bornAt: now}
	s.mu.Lock()
	s.flows[key] = f
	s.mu.Unlock()

	s.emit(RawFlowEvent{Site: SiteFirstConfirm, Block: block, NowNS: uint64(now.UnixNano())})
}

func (s *Synthetic) refresh(f *syntheticFlow, nowNS uint64) {
	f.block.AddPackets(uint64(1+s.rng.Intn(4)), uint64(64+s.rng.Intn(1400)), uint64(s.rng.Intn(3)), uint64(s.rng.Intn(900)))

	s.mu.Lock()
	s.stash++
	stashID := s.stash
	s.mu.Unlock()

	s.emit(RawFlowEvent{Site: SiteRefreshEntry, Block: f.block, StashID: stashID, NowNS: nowNS})
	s.emit(RawFlowEvent{Site: SiteRefreshReturn, Block: f.block, StashID: stashID, NowNS: nowNS})
}

func (s *Synthetic) retire(f *syntheticFlow, nowNS uint64) {
	s.mu.Lock()
	delete(s.flows, f.block.Key)
	s.mu.Unlock()

	s.emit(RawFlowEvent{Site: SiteDestroy, Block: f.block, NowNS: nowNS})
}

func (s *Synthetic) emit(ev RawFlowEvent) {
	select {
	case s.out <- ev:
	case <-s.done:
	}
}

func randomTuple(rng *rand.Rand) kernel.Tuple {
	proto := []uint8{6, 17}[rng.Intn(2)] // tcp or udp
	src := net.IPv4(10, 0, byte(rng.Intn(256)), byte(rng.Intn(256)))
	dst := net.IPv4(10, 1, byte(rng.Intn(256)), byte(rng.Intn(256)))
	return kernel.Tuple{
		Proto:   proto,
		SrcIP:   src,
		DstIP:   dst,
		SrcPort: uint16(1024 + rng.Intn(60000)),
		DstPort: []uint16{80, 443, 53, 8080}[rng.Intn(4)],
	}
}
