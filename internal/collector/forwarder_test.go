package collector

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/flowacctd/conntracct/internal/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwarderFlushesOnBatchSize(t *testing.T) {
	var mu sync.Mutex
	var received [][]kernel.AcctEvent

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []kernel.AcctEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		mu.Lock()
		received = append(received, batch)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := NewForwarder(srv.URL)
	defer f.Close()

	for i := 0; i < forwarderBatchSize; i++ {
		require.NoError(t, f.Process(kernel.AcctEvent{CPtr: kernel.FlowKey(i)}))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1 && len(received[0]) == forwarderBatchSize
	}, time.Second, 10*time.Millisecond)
}

func TestForwarderCloseFlushesPartialBatch(t *testing.T) {
	var mu sync.Mutex
	var received []kernel.AcctEvent

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []kernel.AcctEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		mu.Lock()
		received = append(received, batch...)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := NewForwarder(srv.URL)
	require.NoError(t, f.Process(kernel.AcctEvent{CPtr: 7}))
	require.NoError(t, f.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, received, 1)
	assert.EqualValues(t, 7, received[0].CPtr)
}

func TestForwarderRequeuesBatchOnPersistentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewForwarder(srv.URL)
	f.client.RetryMax = 0 // fail fast for the test

	require.NoError(t, f.Process(kernel.AcctEvent{CPtr: 1}))
	assert.NotPanics(t, func() { require.NoError(t, f.Close()) })
	assert.Len(t, f.pending, 1, "the failed batch must be requeued, not dropped")
}
