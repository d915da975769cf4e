package collector

import (
	"sync"
	"time"

	"github.com/flowacctd/conntracct/internal/kernel"
	"github.com/hashicorp/go-multierror"
)

// staleTimeout bounds how long a flow may go without an event before the
// sweeper assumes its real END event was lost off a full ring (spec.md
// §6's ring is lossy by design) and forwards the flow's last event
// downstream a second time in its place.
const staleTimeout = 2 * time.Minute

// StaleFlowSweeper tracks every flow it has seen an event for and
// evicts it — forwarding the last event it saw for that flow downstream
// again, unchanged — if no further event arrives and MarkEnded is not
// called within staleTimeout. This
// mirrors tcp_conn_tracker's per-connection time.AfterFunc eviction,
// repurposed here to recover from a dropped real END rather than from a
// connection that never sends a FIN.
type StaleFlowSweeper struct {
	next Collector

	mu      sync.Mutex
	active  map[kernel.FlowKey]*staleEntry
	closed  bool
	timeout time.Duration
}

type staleEntry struct {
	last  kernel.AcctEvent
	timer *time.Timer
}

// NewStaleFlowSweeper wraps next with stale-flow recovery using the
// default timeout.
func NewStaleFlowSweeper(next Collector) *StaleFlowSweeper {
	return &StaleFlowSweeper{
		next:    next,
		active:  make(map[kernel.FlowKey]*staleEntry),
		timeout: staleTimeout,
	}
}

var _ Collector = (*StaleFlowSweeper)(nil)

// Process forwards ev downstream and arms or rearms this flow's eviction
// timer. It does not tell UPDATE from END events (both share one record
// layout); the caller that knows an event came off the end ring calls
// MarkEnded to drop the flow's bookkeeping.
func (s *StaleFlowSweeper) Process(ev kernel.AcctEvent) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	if entry, exists := s.active[ev.CPtr]; exists {
		entry.last = ev
		entry.timer.Reset(s.timeout)
	} else {
		s.active[ev.CPtr] = &staleEntry{
			last:  ev,
			timer: time.AfterFunc(s.timeout, func() { s.evict(ev.CPtr) }),
		}
	}
	s.mu.Unlock()

	return s.next.Process(ev)
}

// MarkEnded removes a flow's bookkeeping without flushing — call this
// when a real END event for the flow has already been forwarded.
func (s *StaleFlowSweeper) MarkEnded(key kernel.FlowKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.active[key]; ok {
		entry.timer.Stop()
		delete(s.active, key)
	}
}

func (s *StaleFlowSweeper) evict(key kernel.FlowKey) {
	s.mu.Lock()
	entry, ok := s.active[key]
	if ok {
		delete(s.active, key)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	_ = s.next.Process(entry.last)
}

// Close flushes every still-active flow's last-known state downstream,
// then closes next.
func (s *StaleFlowSweeper) Close() error {
	s.mu.Lock()
	s.closed = true
	entries := s.active
	s.active = map[kernel.FlowKey]*staleEntry{}
	s.mu.Unlock()

	var result *multierror.Error
	for _, entry := range entries {
		entry.timer.Stop()
		if err := s.next.Process(entry.last); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := s.next.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// ActiveCount reports how many flows the sweeper currently tracks, for
// the admin server's introspection endpoint.
func (s *StaleFlowSweeper) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
