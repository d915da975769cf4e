package collector

import (
	"testing"
	"time"

	"github.com/flowacctd/conntracct/internal/kernel"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadThrottleCapsEventsPerEpoch(t *testing.T) {
	viper.Set(UploadEventsPerEpoch, 3)
	viper.Set(UploadEpochTime, time.Hour) // epoch won't roll over during the test
	defer viper.Set(UploadEventsPerEpoch, 20_000)
	defer viper.Set(UploadEpochTime, time.Minute)

	rec := &recordingCollector{}
	throttle := NewUploadThrottle(rec)
	defer throttle.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, throttle.Process(kernel.AcctEvent{CPtr: kernel.FlowKey(i)}))
	}

	assert.Len(t, rec.snapshot(), 3)
	assert.EqualValues(t, 2, throttle.Dropped())
}

func TestUploadThrottleResetsOnEpoch(t *testing.T) {
	viper.Set(UploadEventsPerEpoch, 1)
	viper.Set(UploadEpochTime, 10*time.Millisecond)
	defer viper.Set(UploadEventsPerEpoch, 20_000)
	defer viper.Set(UploadEpochTime, time.Minute)

	rec := &recordingCollector{}
	throttle := NewUploadThrottle(rec)
	defer throttle.Close()

	require.NoError(t, throttle.Process(kernel.AcctEvent{CPtr: 1}))
	require.NoError(t, throttle.Process(kernel.AcctEvent{CPtr: 2})) // dropped, budget exhausted

	require.Eventually(t, func() bool {
		require.NoError(t, throttle.Process(kernel.AcctEvent{CPtr: 3}))
		return len(rec.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)
}
