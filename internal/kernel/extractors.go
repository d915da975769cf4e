package kernel

// Each extractor here ports one of the kernel-memory reads in spec.md
// §4.2 (grounded on bpf/acct.c's extract_counters/extract_tstamp/
// extract_tuple/extract_netns/flow_status_valid). Every read is treated
// as fallible and non-fatal: failure degrades the event rather than
// aborting it, except for counters, which are mandatory.

// statusValid reports whether the flow has passed conntrack policy and
// may be sampled. A zero status means the flow (and its packet) are at
// risk of being dropped before ever being committed to the table.
func statusValid(f *FlowBlock) bool {
	return f.Status != 0
}

// extractCounters copies the accounting extension's counters into ev.
// Returns false if the extension is absent; the sampler must then
// suppress the event entirely, since there is nothing to report.
func extractCounters(ev *AcctEvent, f *FlowBlock) bool {
	if !f.hasExt(extAcct) {
		return false
	}
	ev.PacketsOrig = f.counters.PacketsOrig
	ev.BytesOrig = f.counters.BytesOrig
	ev.PacketsRet = f.counters.PacketsRet
	ev.BytesRet = f.counters.BytesRet
	return true
}

// extractTimestamp copies the flow's start timestamp into ev. A missing
// timestamp extension leaves StartNS at zero and does not fail the event.
func extractTimestamp(ev *AcctEvent, f *FlowBlock) {
	if !f.hasExt(extTimestamp) {
		ev.StartNS = 0
		return
	}
	ev.StartNS = f.startNS
}

// extractTuple fills proto, addresses and ports from the flow's original
// direction tuple. This extraction must never fail.
func extractTuple(ev *AcctEvent, f *FlowBlock) {
	ev.Proto = f.tuple.Proto
	ev.SetSrcIP(f.tuple.SrcIP)
	ev.SetDstIP(f.tuple.DstIP)
	ev.SrcPort = f.tuple.SrcPort
	ev.DstPort = f.tuple.DstPort
}

// extractNetNS walks the flow's namespace pointer to its inode number.
// Any read failure (simulated via ReadFailNetns) leaves NetNS at zero.
func extractNetNS(ev *AcctEvent, f *FlowBlock) {
	if f.ReadFailNetns {
		ev.NetNS = 0
		return
	}
	ev.NetNS = f.netnsInum
}

// extractMark copies the connmark field, which has no failure mode of
// its own in this model (a real read could still fail transiently; that
// degrades to a zero mark, same as any other optional field).
func extractMark(ev *AcctEvent, f *FlowBlock) {
	ev.ConnMark = f.connmark
}
