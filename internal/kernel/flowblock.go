package kernel

import "net"

// extKind identifies an optional conntrack extension. The real kernel
// locates these through an offset table hanging off the flow's extension
// block; a zero offset means the extension is not compiled in or not
// enabled for this flow (spec.md §4.2).
type extKind int

const (
	extAcct extKind = iota
	extTimestamp
)

// Counters holds the per-direction packet/byte counters carried by the
// accounting extension.
type Counters struct {
	PacketsOrig uint64
	BytesOrig   uint64
	PacketsRet  uint64
	BytesRet    uint64
}

// Tuple holds the "original direction" 5-tuple of a flow.
type Tuple struct {
	Proto   uint8
	SrcIP   net.IP
	DstIP   net.IP
	SrcPort uint16 // port number, not byte-swapped
	DstPort uint16 // port number, not byte-swapped
}

// FlowBlock stands in for the kernel's conntrack entry (struct nf_conn).
// It is the one domain type not named by spec.md's glossary: its sole
// purpose is giving the extractors in extractors.go something concrete to
// read from and fail against, the way bpf_probe_read would against a real
// nf_conn. See SPEC_FULL.md §3.1.
//
// A FlowBlock must not be mutated concurrently with a probe reading it;
// callers own synchronization the same way a real flow's refcount does.
type FlowBlock struct {
	Key FlowKey

	// Status mirrors nf_conn.status: zero means the flow has not yet
	// passed policy and must not be sampled.
	Status uint32

	// extensions present, keyed by offset-table slot. A kind absent from
	// this set models a zero offset (extension disabled).
	extensions map[extKind]bool

	counters  Counters
	startNS   uint64 // 0 if the timestamp extension is absent
	tuple     Tuple
	netnsInum uint32 // 0 if the netns pointer could not be read
	connmark  uint32

	// ReadFailNetns simulates a transient bpf_probe_read failure on the
	// netns walk, independent of whether the extension/pointer exists.
	ReadFailNetns bool
}

// NewFlowBlock returns a FlowBlock with status already validated (as if
// the flow has passed conntrack policy) and no optional extensions
// enabled. Use the With* methods to enable extensions.
func NewFlowBlock(key FlowKey, tuple Tuple) *FlowBlock {
	return &FlowBlock{
		Key:        key,
		Status:     1,
		extensions: make(map[extKind]bool),
		tuple:      tuple,
	}
}

// WithAccounting enables the accounting extension and seeds its counters.
func (f *FlowBlock) WithAccounting(c Counters) *FlowBlock {
	f.extensions[extAcct] = true
	f.counters = c
	return f
}

// AddPackets increments the accounting counters in place, simulating the
// kernel refreshing them between probe invocations.
func (f *FlowBlock) AddPackets(origPkts, origBytes, retPkts, retBytes uint64) {
	f.counters.PacketsOrig += origPkts
	f.counters.BytesOrig += origBytes
	f.counters.PacketsRet += retPkts
	f.counters.BytesRet += retBytes
}

// WithTimestamp enables the timestamp extension and sets the flow's start
// time in kernel-monotonic nanoseconds.
func (f *FlowBlock) WithTimestamp(startNS uint64) *FlowBlock {
	f.extensions[extTimestamp] = true
	f.startNS = startNS
	return f
}

// WithNetNS sets the namespace inode that the netns extractor will return.
func (f *FlowBlock) WithNetNS(inum uint32) *FlowBlock {
	f.netnsInum = inum
	return f
}

// WithMark sets the connmark field.
func (f *FlowBlock) WithMark(mark uint32) *FlowBlock {
	f.connmark = mark
	return f
}

func (f *FlowBlock) hasExt(k extKind) bool {
	return f.extensions[k]
}

// Counters returns the accounting extension's current counters. Callers
// outside this package use it to compare two observations of the same
// flow (e.g. probeio's procfs poller deciding whether a refresh fired);
// it does not indicate whether the extension is actually enabled.
func (f *FlowBlock) Counters() Counters {
	return f.counters
}
