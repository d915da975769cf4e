package collector

import (
	"sync"
	"time"

	"github.com/flowacctd/conntracct/internal/kernel"
	"github.com/flowacctd/conntracct/printer"
	"github.com/spf13/viper"
)

// Viper keys controlling the upload throttle, named after the pattern
// trace.SharedRateLimit uses for its own epoch/budget settings.
const (
	UploadEpochTime      = "upload-epoch-time"
	UploadEventsPerEpoch = "upload-events-per-epoch"
)

func init() {
	viper.SetDefault(UploadEpochTime, 1*time.Minute)
	viper.SetDefault(UploadEventsPerEpoch, 20_000)
}

// UploadThrottle caps how many events per epoch are allowed through to
// the next stage (normally a Forwarder), so a burst of flow churn can't
// turn into an unbounded outbound request rate. Unlike
// trace.SharedRateLimit's randomized sampling-interval placement — built
// for picking a representative slice of witness traffic — every event up
// to the budget is let through in arrival order and the rest of the
// epoch is simply dropped, since an UPDATE/END record's value doesn't
// degrade by being "unrepresentative".
type UploadThrottle struct {
	next Collector

	mu           sync.Mutex
	budget       int
	used         int
	epochTicker  *time.Ticker
	done         chan struct{}
	wg           sync.WaitGroup
	droppedTotal uint64
}

// NewUploadThrottle starts its epoch ticker immediately.
func NewUploadThrottle(next Collector) *UploadThrottle {
	t := &UploadThrottle{
		next:        next,
		budget:      viper.GetInt(UploadEventsPerEpoch),
		epochTicker: time.NewTicker(viper.GetDuration(UploadEpochTime)),
		done:        make(chan struct{}),
	}
	t.wg.Add(1)
	go t.run()
	return t
}

var _ Collector = (*UploadThrottle)(nil)

func (t *UploadThrottle) run() {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case <-t.epochTicker.C:
			t.mu.Lock()
			t.used = 0
			t.mu.Unlock()
		}
	}
}

func (t *UploadThrottle) Process(ev kernel.AcctEvent) error {
	t.mu.Lock()
	if t.used >= t.budget {
		t.droppedTotal++
		t.mu.Unlock()
		return nil
	}
	t.used++
	t.mu.Unlock()

	return t.next.Process(ev)
}

// Dropped returns the count of events this throttle has dropped since
// start because the epoch's budget was exhausted.
func (t *UploadThrottle) Dropped() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.droppedTotal
}

func (t *UploadThrottle) Close() error {
	close(t.done)
	t.epochTicker.Stop()
	t.wg.Wait()
	if dropped := t.Dropped(); dropped > 0 {
		printer.Debugf("upload throttle dropped %d events over its lifetime\n", dropped)
	}
	return t.next.Close()
}
