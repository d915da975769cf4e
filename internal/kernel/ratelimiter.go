package kernel

// RateLimiter implements the curve-based decision described in spec.md
// §4.3, ported from bpf/acct.c's flow_get_age / flow_get_interval /
// flow_set_cooldown / flow_initialize_origin.
type RateLimiter struct {
	Curve    *RateCurveMap
	Cooldown *FlowCooldownMap
	Origin   *FlowOriginMap
}

// NewRateLimiter wires a rate limiter against the given maps.
func NewRateLimiter(curve *RateCurveMap, cooldown *FlowCooldownMap, origin *FlowOriginMap) *RateLimiter {
	return &RateLimiter{Curve: curve, Cooldown: cooldown, Origin: origin}
}

// age returns now minus the flow's recorded origin. A flow with no
// recorded origin is treated as age zero (newly observed), matching
// flow_get_age's "lookup miss causes a 0ns age" behavior.
func (r *RateLimiter) age(key FlowKey, now uint64) uint64 {
	origin, ok := r.Origin.Get(key)
	if !ok {
		return 0
	}
	return now - origin
}

// CooldownExpired reports whether now is at or past the flow's recorded
// cooldown deadline. A flow with no recorded deadline has an implicit
// deadline of zero, so it is always expired (first packet is always
// allowed).
func (r *RateLimiter) CooldownExpired(key FlowKey, now uint64) bool {
	next, ok := r.Cooldown.Get(key)
	if !ok {
		return true
	}
	return now >= next
}

// InitOrigin initializes the flow's origin on its first emission
// (spec.md §4.3 "Origin initialization"). It is a no-op on subsequent
// calls, due to insert-if-absent semantics.
//
//   - If the flow has seen at most one cumulative packet so far, origin
//     is now: this is a genuinely new flow.
//   - Otherwise the flow predates this sampler being loaded (a restart
//     scenario): origin is back-dated by the curve's middle age
//     threshold so the flow is immediately treated as middle-aged,
//     avoiding an event storm across every pre-existing flow. Back-dating
//     is clamped to zero to avoid underflow.
//
// If the curve has not been configured, a brand-new flow still gets
// origin = now (it doesn't need curve data); a restarting flow's origin
// defaults to now as well, since there is no C1 age to back-date by.
func (r *RateLimiter) InitOrigin(key FlowKey, now uint64, pktsTotal uint64) uint64 {
	origin := now

	if pktsTotal >= 2 {
		if c1, ok := r.Curve.Get(1); ok {
			if origin > c1.AgeNS {
				origin -= c1.AgeNS
			} else {
				origin = 0
			}
		}
	}

	return r.Origin.InsertIfAbsent(key, origin)
}

// interval signals "drop" via ok=false: either a curve lookup failed, or
// the flow is younger than the minimum age threshold (spec.md §4.3).
func (r *RateLimiter) interval(key FlowKey, now uint64) (ns uint64, ok bool) {
	age := r.age(key, now)

	c0, ok := r.Curve.Get(0)
	if !ok {
		return 0, false
	}
	if age < c0.AgeNS {
		return 0, false
	}

	c1, ok := r.Curve.Get(1)
	if !ok {
		return 0, false
	}
	if age < c1.AgeNS {
		return c0.IntervalNS, true
	}

	c2, ok := r.Curve.Get(2)
	if !ok {
		return 0, false
	}
	if age < c2.AgeNS {
		return c1.IntervalNS, true
	}

	return c2.IntervalNS, true
}

// SetCooldown computes the flow's update interval from its age and, if
// allowed, writes a new cooldown deadline of now+interval. It returns
// ok=false when the event must be dropped (too young, or curve lookup
// failure), in which case no cooldown is written.
func (r *RateLimiter) SetCooldown(key FlowKey, now uint64) (intervalNS uint64, ok bool) {
	intervalNS, ok = r.interval(key, now)
	if !ok {
		return 0, false
	}
	r.Cooldown.Set(key, now+intervalNS)
	return intervalNS, true
}

// Cleanup removes both the cooldown and origin entries for key, as the
// destroy handler must do before it returns (spec.md §3 invariant).
func (r *RateLimiter) Cleanup(key FlowKey) {
	r.Cooldown.Delete(key)
	r.Origin.Delete(key)
}
