package kernel

// Probes groups the four attachment-site handlers of spec.md §4.5, each
// ported from one SEC("kprobe/...") function in bpf/acct.c. Every handler
// starts with the Ready gate (spec.md §5 "Readiness"): until userspace
// writes ReadyMagic to Config, every handler no-ops and no map is
// mutated.
type Probes struct {
	Config  *ConfigMap
	Stash   *StashCurrentFlow
	Sampler *Sampler
}

// NewProbes wires the four probe handlers against shared maps and a
// sampler.
func NewProbes(cfg *ConfigMap, stash *StashCurrentFlow, sampler *Sampler) *Probes {
	return &Probes{Config: cfg, Stash: stash, Sampler: sampler}
}

// FirstConfirm is attached to the site called after the kernel commits a
// new flow into its table (ported from
// kprobe____nf_conntrack_hash_insert). It samples the very first UPDATE.
func (p *Probes) FirstConfirm(block *FlowBlock, now uint64) {
	if !p.Config.Ready() {
		return
	}
	p.Sampler.SampleUpdate(block, now)
}

// RefreshEntry is attached to the site called on every kernel counter
// refresh (ported from kprobe____nf_ct_refresh_acct). It stashes the flow
// handle for the paired return probe to pick up once counters have been
// updated.
func (p *Probes) RefreshEntry(block *FlowBlock, stashID uint64) {
	if !p.Config.Ready() {
		return
	}
	p.Stash.Put(stashID, block.Key)
}

// RefreshReturn is the return half of RefreshEntry (ported from
// kretprobe____nf_ct_refresh_acct). If the entry probe's stash is
// missing — it either never ran or raced with another return on the same
// stash slot — this no-ops rather than sampling a flow it cannot
// identify.
func (p *Probes) RefreshReturn(block *FlowBlock, stashID uint64, now uint64) {
	if !p.Config.Ready() {
		return
	}
	key, ok := p.Stash.TakeAndDelete(stashID)
	if !ok || key != block.Key {
		return
	}
	p.Sampler.SampleUpdate(block, now)
}

// Destroy is attached to the site called when the kernel frees the flow
// (ported from kprobe__destroy_conntrack). Bookkeeping cleanup always
// runs, even for flows that never passed policy; the END event itself is
// still gated on status and counters, same as any UPDATE.
func (p *Probes) Destroy(block *FlowBlock, now uint64) {
	if !p.Config.Ready() {
		return
	}
	p.Sampler.SampleEnd(block, now)
}
