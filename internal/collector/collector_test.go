package collector

import (
	"errors"
	"testing"

	"github.com/flowacctd/conntracct/internal/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeeForwardsToBothDestinations(t *testing.T) {
	rec1 := &recordingCollector{}
	rec2 := &recordingCollector{}
	tee := Tee{Dst1: rec1, Dst2: rec2}

	require.NoError(t, tee.Process(kernel.AcctEvent{CPtr: 1}))

	assert.Len(t, rec1.snapshot(), 1)
	assert.Len(t, rec2.snapshot(), 1)
}

func TestTeeCloseClosesBothDestinations(t *testing.T) {
	rec1 := &recordingCollector{}
	rec2 := &recordingCollector{}
	tee := Tee{Dst1: rec1, Dst2: rec2}

	require.NoError(t, tee.Close())

	assert.True(t, rec1.closed)
	assert.True(t, rec2.closed)
}

type failingCollector struct {
	err error
}

func (f failingCollector) Process(kernel.AcctEvent) error { return f.err }
func (f failingCollector) Close() error                   { return f.err }

func TestTeeProcessAggregatesBothErrors(t *testing.T) {
	err1 := errors.New("dst1 failed")
	err2 := errors.New("dst2 failed")
	tee := Tee{Dst1: failingCollector{err: err1}, Dst2: failingCollector{err: err2}}

	err := tee.Process(kernel.AcctEvent{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dst1 failed")
	assert.Contains(t, err.Error(), "dst2 failed")
}

func TestFuncAdaptsPlainFunction(t *testing.T) {
	var got kernel.AcctEvent
	f := Func(func(ev kernel.AcctEvent) error {
		got = ev
		return nil
	})

	require.NoError(t, f.Process(kernel.AcctEvent{CPtr: 7}))
	assert.EqualValues(t, 7, got.CPtr)
	assert.NoError(t, f.Close())
}
