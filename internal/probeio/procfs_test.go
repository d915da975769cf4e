package probeio

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowacctd/conntracct/internal/kernel"
)

const sampleConntrackLine = `ipv4 2 tcp 6 431999 ESTABLISHED src=10.0.0.1 dst=10.0.0.2 sport=1234 dport=80 packets=10 bytes=840 src=10.0.0.2 dst=10.0.0.1 sport=80 dport=1234 packets=8 bytes=960 [ASSURED] mark=5 use=2`

func TestParseConntrackLineExtractsTupleAndCounters(t *testing.T) {
	block, ok := parseConntrackLine(sampleConntrackLine)
	require.True(t, ok)

	counters := block.Counters()
	assert.EqualValues(t, 10, counters.PacketsOrig)
	assert.EqualValues(t, 840, counters.BytesOrig)
	assert.EqualValues(t, 8, counters.PacketsRet)
	assert.EqualValues(t, 960, counters.BytesRet)
}

func TestParseConntrackLineRejectsShortLines(t *testing.T) {
	_, ok := parseConntrackLine("ipv4 2")
	assert.False(t, ok)
}

func TestParseConntrackLineRejectsMissingAddresses(t *testing.T) {
	_, ok := parseConntrackLine("ipv4 2 tcp 6 431999 ESTABLISHED sport=1234 dport=80")
	assert.False(t, ok)
}

func TestTupleKeyStableAcrossCalls(t *testing.T) {
	src := net.ParseIP("10.0.0.1")
	dst := net.ParseIP("10.0.0.2")

	k1 := tupleKey("tcp", src, dst, 1234, 80)
	k2 := tupleKey("tcp", src, dst, 1234, 80)
	k3 := tupleKey("tcp", src, dst, 1234, 81)

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestHasNewPacketsDetectsIncreasedCounters(t *testing.T) {
	old := kernel.NewFlowBlock(1, kernel.Tuple{}).WithAccounting(kernel.Counters{PacketsOrig: 1, PacketsRet: 1})
	same := kernel.NewFlowBlock(1, kernel.Tuple{}).WithAccounting(kernel.Counters{PacketsOrig: 1, PacketsRet: 1})
	more := kernel.NewFlowBlock(1, kernel.Tuple{}).WithAccounting(kernel.Counters{PacketsOrig: 2, PacketsRet: 1})

	assert.False(t, hasNewPackets(old, same))
	assert.True(t, hasNewPackets(old, more))
}

func TestProcfsSourceStopClosesEventsChannel(t *testing.T) {
	s := NewProcfsSource("/nonexistent/path/for/test", 0)
	s.Stop()

	_, ok := <-s.Events()
	assert.False(t, ok)
}
