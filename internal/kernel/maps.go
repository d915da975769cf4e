package kernel

import "sync"

// ReadyMagic is the value userspace must write to Config's Ready slot
// before any probe takes action (spec.md §3).
const ReadyMagic uint64 = 0x90

// ConfigMax is the number of slots in the Config array map.
const ConfigMax = 1

// ConfigMap models the fixed-slot config array. Slot 0 is Ready.
//
// All map types in this file are single-process hash/array maps backed by
// a mutex: the real maps are accessed concurrently by every CPU with only
// a per-key atomicity guarantee (spec.md §5), which a single mutex
// over-delivers on but never violates — two racing writers still leave a
// valid value behind, which is all the spec requires.
type ConfigMap struct {
	mu    sync.RWMutex
	ready uint64
}

// SetReady writes a raw value into the Ready slot. Userspace writes
// ReadyMagic to arm the probes.
func (c *ConfigMap) SetReady(v uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = v
}

// Ready reports whether the Ready slot currently holds the magic value.
func (c *ConfigMap) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready == ReadyMagic
}

// CurvePoint is one (age threshold, interval) step of the rate curve.
type CurvePoint struct {
	AgeNS      uint64
	IntervalNS uint64
}

// RateCurveMap models config_ratecurve: three monotonic (age, interval)
// steps used by the rate limiter to pick an update interval from a flow's
// age. A curve with zero entries configured causes every lookup to fail
// closed (spec.md §4.3, §9 "Fail-closed on curve configuration").
type RateCurveMap struct {
	mu        sync.RWMutex
	points    [3]CurvePoint
	configured bool
}

// SetCurve installs all three curve points at once, as userspace is
// expected to do before setting Ready (spec.md §6).
func (r *RateCurveMap) SetCurve(c0, c1, c2 CurvePoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = [3]CurvePoint{c0, c1, c2}
	r.configured = true
}

// Get returns the curve point at index i (0, 1 or 2) and whether the
// curve has been configured at all.
func (r *RateCurveMap) Get(i int) (CurvePoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.configured || i < 0 || i > 2 {
		return CurvePoint{}, false
	}
	return r.points[i], true
}

// FlowCooldownMap is flow_cooldown: flow key -> monotonic ns deadline
// before which the flow may not emit another UPDATE (except the first).
type FlowCooldownMap struct {
	mu sync.Mutex
	m  map[FlowKey]uint64
}

// NewFlowCooldownMap returns an empty cooldown map.
func NewFlowCooldownMap() *FlowCooldownMap {
	return &FlowCooldownMap{m: make(map[FlowKey]uint64)}
}

// Get returns the deadline for key and whether one is recorded.
func (c *FlowCooldownMap) Get(key FlowKey) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

// Set unconditionally (BPF_ANY) writes the deadline for key. Two CPUs
// racing here both write a valid deadline; last writer wins, which
// spec.md §5 calls out as benign.
func (c *FlowCooldownMap) Set(key FlowKey, deadline uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = deadline
}

// Delete removes key's entry, if any.
func (c *FlowCooldownMap) Delete(key FlowKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
}

// Len reports the number of live entries, for introspection/tests.
func (c *FlowCooldownMap) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

// Snapshot returns a copy of the map's contents, for read-only
// introspection by userspace (spec.md §6).
func (c *FlowCooldownMap) Snapshot() map[FlowKey]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[FlowKey]uint64, len(c.m))
	for k, v := range c.m {
		out[k] = v
	}
	return out
}

// FlowOriginMap is flow_origin: flow key -> monotonic ns of first
// observation. Writes are insert-if-absent (BPF_NOEXIST): only the first
// call for a given key stores a value.
type FlowOriginMap struct {
	mu sync.Mutex
	m  map[FlowKey]uint64
}

// NewFlowOriginMap returns an empty origin map.
func NewFlowOriginMap() *FlowOriginMap {
	return &FlowOriginMap{m: make(map[FlowKey]uint64)}
}

// Get returns the origin timestamp for key and whether one is recorded.
func (o *FlowOriginMap) Get(key FlowKey) (uint64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.m[key]
	return v, ok
}

// InsertIfAbsent writes origin for key only if no entry exists yet, and
// returns the value now stored (the new one, or the pre-existing one).
func (o *FlowOriginMap) InsertIfAbsent(key FlowKey, origin uint64) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if v, ok := o.m[key]; ok {
		return v
	}
	o.m[key] = origin
	return origin
}

// Delete removes key's entry, if any.
func (o *FlowOriginMap) Delete(key FlowKey) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.m, key)
}

// Len reports the number of live entries, for introspection/tests.
func (o *FlowOriginMap) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.m)
}

// Snapshot returns a copy of the map's contents, for read-only
// introspection by userspace (spec.md §6).
func (o *FlowOriginMap) Snapshot() map[FlowKey]uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[FlowKey]uint64, len(o.m))
	for k, v := range o.m {
		out[k] = v
	}
	return out
}

// StashCurrentFlow is currct: a per-(CPU, thread) scratch slot bridging
// the refresh-entry probe to its paired refresh-return probe, so the
// latter can read counters only after the kernel has updated them
// (SPEC_FULL.md §5, spec.md §9 "Per-CPU stash as a thread-local shim").
//
// There is no real per-CPU hardware concept in this process; a goroutine
// id standing in for (CPU, thread-id) would be unobservable and
// unstable, so callers instead supply their own stable StashID (e.g. a
// flow source's worker index) that plays the same role: entry inserts
// under it, return reads-and-deletes under it, and nothing else touches
// the slot in between.
type StashCurrentFlow struct {
	mu sync.Mutex
	m  map[uint64]FlowKey
}

// NewStashCurrentFlow returns an empty stash map.
func NewStashCurrentFlow() *StashCurrentFlow {
	return &StashCurrentFlow{m: make(map[uint64]FlowKey)}
}

// Put stashes key under id, as the refresh-entry probe does.
func (s *StashCurrentFlow) Put(id uint64, key FlowKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id] = key
}

// TakeAndDelete reads and removes the entry stashed under id, as the
// refresh-return probe does. ok is false if the entry probe never ran or
// raced with another return (spec.md §4.5: "If stash missed ... no-op").
func (s *StashCurrentFlow) TakeAndDelete(id uint64) (FlowKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.m[id]
	if ok {
		delete(s.m, id)
	}
	return key, ok
}

// Len reports the number of live entries, for tests asserting the
// "always drained" invariant.
func (s *StashCurrentFlow) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
