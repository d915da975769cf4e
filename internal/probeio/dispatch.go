package probeio

import (
	"sync"

	"github.com/flowacctd/conntracct/internal/kernel"
)

// Dispatch drains a FlowSource's events and calls the matching method on
// a kernel.Probes, the same fan-out a real kprobe/kretprobe attachment
// would otherwise perform directly. It runs until the source's channel
// closes or Stop is called.
type Dispatch struct {
	source FlowSource
	probes *kernel.Probes

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewDispatch starts draining source immediately in a background
// goroutine.
func NewDispatch(source FlowSource, probes *kernel.Probes) *Dispatch {
	d := &Dispatch{
		source: source,
		probes: probes,
		done:   make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatch) run() {
	defer d.wg.Done()
	for {
		select {
		case ev, ok := <-d.source.Events():
			if !ok {
				return
			}
			d.handle(ev)
		case <-d.done:
			return
		}
	}
}

func (d *Dispatch) handle(ev RawFlowEvent) {
	switch ev.Site {
	case SiteFirstConfirm:
		d.probes.FirstConfirm(ev.Block, ev.NowNS)
	case SiteRefreshEntry:
		d.probes.RefreshEntry(ev.Block, ev.StashID)
	case SiteRefreshReturn:
		d.probes.RefreshReturn(ev.Block, ev.StashID, ev.NowNS)
	case SiteDestroy:
		d.probes.Destroy(ev.Block, ev.NowNS)
	}
}

// Stop ends the dispatch loop and the underlying source. Idempotent.
func (d *Dispatch) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
	d.source.Stop()
	d.wg.Wait()
}
