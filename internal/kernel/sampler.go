package kernel

// Emitter is the seam between the sampler and the ring transport
// (internal/ring). Submit must never block and never return an error to
// the probe; ring drops are accounted for on the ring side (spec.md §5
// "Ring policy").
type Emitter interface {
	SubmitUpdate(ev AcctEvent)
	SubmitEnd(ev AcctEvent)
}

// Sampler is the shared decision+emit routine described in spec.md §4.4,
// ported from bpf/acct.c's flow_sample_update.
type Sampler struct {
	RateLimiter *RateLimiter
	Emit        Emitter
}

// NewSampler wires a sampler against a rate limiter and an emitter.
func NewSampler(rl *RateLimiter, emit Emitter) *Sampler {
	return &Sampler{RateLimiter: rl, Emit: emit}
}

// SampleUpdate runs the full decision sequence for one probe firing on
// flow at time now, reading state from block. Step ordering mirrors
// spec.md §4.4 exactly: counters are read before the cooldown check
// (the packet-count snapshot is the cooldown input), and origin is
// written before the cooldown/interval lookup, so that a failed curve
// lookup still leaves a valid birth time recorded.
func (s *Sampler) SampleUpdate(block *FlowBlock, now uint64) {
	if !statusValid(block) {
		return
	}

	ev := AcctEvent{TSNS: now, CPtr: block.Key}

	if !extractCounters(&ev, block) {
		return
	}

	pktsTotal := ev.PacketsTotal()
	if pktsTotal > 1 && !s.RateLimiter.CooldownExpired(block.Key, now) {
		return
	}

	s.RateLimiter.InitOrigin(block.Key, now, pktsTotal)

	if _, ok := s.RateLimiter.SetCooldown(block.Key, now); !ok {
		return
	}

	extractTuple(&ev, block)
	extractNetNS(&ev, block)
	extractTimestamp(&ev, block)
	extractMark(&ev, block)

	s.Emit.SubmitUpdate(ev)
}

// SampleEnd runs the destroy-time emission described in spec.md §4.5: the
// rate-limiting bookkeeping for the flow is always cleaned up first, and
// only then is the END event built and emitted, gated solely on status
// and the mandatory counters extraction.
func (s *Sampler) SampleEnd(block *FlowBlock, now uint64) {
	s.RateLimiter.Cleanup(block.Key)

	if !statusValid(block) {
		return
	}

	ev := AcctEvent{TSNS: now, CPtr: block.Key}

	if !extractCounters(&ev, block) {
		return
	}

	extractTuple(&ev, block)
	extractNetNS(&ev, block)
	extractTimestamp(&ev, block)
	extractMark(&ev, block)

	s.Emit.SubmitEnd(ev)
}
