package selfusage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorSampleOnLinux(t *testing.T) {
	mon, err := NewMonitor()
	require.NoError(t, err)

	usage, err := mon.Sample()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, usage.RelativeCPU, 0.0)
	assert.Greater(t, usage.VMPeak, uint64(0))
}
