// Package probeio is the attachment seam spec.md §1 calls "the userspace
// loader that compiles/loads the probes" — out of the core's scope, but
// part of the full agent. A FlowSource is whatever resolves and attaches
// the four kernel sites (spec.md §4.1) and turns their firings into
// RawFlowEvents for the kernel package's probe handlers to consume.
package probeio

import "github.com/flowacctd/conntracct/internal/kernel"

// Site identifies which of the four attachment points fired.
type Site int

const (
	// SiteFirstConfirm fires after the kernel commits a new flow to its
	// table.
	SiteFirstConfirm Site = iota
	// SiteRefreshEntry fires on kernel entry to a counter refresh.
	SiteRefreshEntry
	// SiteRefreshReturn fires on return from a counter refresh.
	SiteRefreshReturn
	// SiteDestroy fires when the kernel frees the flow.
	SiteDestroy
)

// RawFlowEvent is what a FlowSource hands the dispatcher: which site
// fired, for which flow, carrying that flow's current observable state.
type RawFlowEvent struct {
	Site    Site
	Block   *kernel.FlowBlock
	StashID uint64 // meaningful only for SiteRefreshEntry/SiteRefreshReturn
	NowNS   uint64
}

// FlowSource is the interface the probe dispatcher is attached to. A real
// implementation resolves kernel symbols per the running kernel version
// and attaches via the probe framework assumed in spec.md §4.1; this
// repository ships Synthetic, a generator used for local operation and
// tests, and ProcfsSource, a poller of the conntrack procfs table.
type FlowSource interface {
	// Events returns the channel of attachment-site firings. The channel
	// is closed when the source is done (e.g. Stop was called).
	Events() <-chan RawFlowEvent

	// Stop releases the source's resources. Idempotent.
	Stop()
}
