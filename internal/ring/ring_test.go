package ring

import (
	"testing"

	"github.com/flowacctd/conntracct/internal/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushNeverBlocksAndCountsDrops(t *testing.T) {
	r := New(2)
	r.Push(kernel.AcctEvent{CPtr: 1})
	r.Push(kernel.AcctEvent{CPtr: 2})
	r.Push(kernel.AcctEvent{CPtr: 3}) // dropped, ring full

	assert.EqualValues(t, 1, r.Dropped())
	assert.Len(t, r.ch, 2)
}

func TestEventsDeliveredInOrder(t *testing.T) {
	r := New(4)
	r.Push(kernel.AcctEvent{CPtr: 1})
	r.Push(kernel.AcctEvent{CPtr: 2})

	ev1 := <-r.Events()
	ev2 := <-r.Events()
	assert.EqualValues(t, 1, ev1.CPtr)
	assert.EqualValues(t, 2, ev2.CPtr)
}

func TestDefaultCapacityAppliedForNonPositive(t *testing.T) {
	r := New(0)
	assert.Equal(t, DefaultCapacity, r.Capacity())
	r = New(-5)
	assert.Equal(t, DefaultCapacity, r.Capacity())
}

func TestPairRoutesToCorrectRing(t *testing.T) {
	p := NewPair(4)
	p.SubmitUpdate(kernel.AcctEvent{CPtr: 1})
	p.SubmitEnd(kernel.AcctEvent{CPtr: 2})

	update := <-p.Update.Events()
	end := <-p.End.Events()
	require.EqualValues(t, 1, update.CPtr)
	require.EqualValues(t, 2, end.CPtr)
}

func TestCloseIsIdempotent(t *testing.T) {
	r := New(2)
	r.Close()
	assert.NotPanics(t, func() { r.Close() })
}
