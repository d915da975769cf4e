package collector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/flowacctd/conntracct/internal/kernel"
	"github.com/flowacctd/conntracct/printer"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/jpillora/backoff"
)

// forwarderBatchSize is how many buffered events trigger an immediate
// flush. A batch requeued after a failed send goes out together with the
// events buffered since, so a single POST can carry more than this.
const forwarderBatchSize = 256

// forwarderFlushInterval is the maximum time a partial batch waits before
// being sent anyway.
const forwarderFlushInterval = 2 * time.Second

// Forwarder batches AcctEvents and POSTs them to a remote collector
// endpoint, retrying transient failures with exponential backoff and
// requeueing a batch that still fails so it goes out with the next
// successful flush. The retry policy mirrors
// rest.HTTPClient's use of go-retryablehttp for request-level retries;
// the additional jpillora/backoff wrapper governs whether the forwarder
// keeps trying the *endpoint* at all after a run of consecutive
// failures: flush skips every scheduled attempt that falls inside the
// current backoff window, the same escalation cloud_client's heartbeat
// loop wants between heartbeat attempts.
type Forwarder struct {
	endpoint string
	client   *retryablehttp.Client
	backoff  *backoff.Backoff

	mu         sync.Mutex
	pending    []kernel.AcctEvent
	timer      *time.Timer
	done       chan struct{}
	wg         sync.WaitGroup
	retryAfter time.Time

	consecutiveFailures int
}

// NewForwarder returns a Forwarder posting batches to endpoint.
func NewForwarder(endpoint string) *Forwarder {
	client := retryablehttp.NewClient()
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.RetryMax = 3
	client.Logger = nil

	f := &Forwarder{
		endpoint: endpoint,
		client:   client,
		backoff: &backoff.Backoff{
			Min:    1 * time.Second,
			Max:    1 * time.Minute,
			Factor: 2,
			Jitter: true,
		},
		timer: time.NewTimer(forwarderFlushInterval),
		done:  make(chan struct{}),
	}
	f.wg.Add(1)
	go f.run()
	return f
}

var _ Collector = (*Forwarder)(nil)

func (f *Forwarder) run() {
	defer f.wg.Done()
	for {
		select {
		case <-f.done:
			return
		case <-f.timer.C:
			f.flush()
			f.timer.Reset(forwarderFlushInterval)
		}
	}
}

func (f *Forwarder) Process(ev kernel.AcctEvent) error {
	f.mu.Lock()
	f.pending = append(f.pending, ev)
	shouldFlush := len(f.pending) >= forwarderBatchSize
	f.mu.Unlock()

	if shouldFlush {
		f.flush()
	}
	return nil
}

func (f *Forwarder) flush() {
	f.mu.Lock()
	if len(f.pending) == 0 {
		f.mu.Unlock()
		return
	}
	if now := time.Now(); now.Before(f.retryAfter) {
		f.mu.Unlock()
		return
	}
	batch := f.pending
	f.pending = nil
	f.mu.Unlock()

	if err := f.send(batch); err != nil {
		f.mu.Lock()
		f.consecutiveFailures++
		wait := f.backoff.Duration()
		f.retryAfter = time.Now().Add(wait)
		f.pending = append(batch, f.pending...)
		f.mu.Unlock()
		printer.Warningf("forwarder: requeueing batch of %d events after send failure: %v (next attempt backs off %s)\n",
			len(batch), err, wait)
		return
	}

	f.mu.Lock()
	f.consecutiveFailures = 0
	f.backoff.Reset()
	f.retryAfter = time.Time{}
	f.mu.Unlock()
}

func (f *Forwarder) send(batch []kernel.AcctEvent) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Close flushes any pending batch and stops the background flush loop.
func (f *Forwarder) Close() error {
	close(f.done)
	f.timer.Stop()
	f.wg.Wait()
	f.mu.Lock()
	f.retryAfter = time.Time{}
	f.mu.Unlock()
	f.flush()
	return nil
}
