package ring

import "github.com/flowacctd/conntracct/internal/kernel"

// Pair implements kernel.Emitter over two independent Rings, one per
// event kind, the same separation spec.md §6 draws between the update
// and end perf arrays.
type Pair struct {
	Update *Ring
	End    *Ring
}

// NewPair returns a Pair with both rings at the given capacity (see
// DefaultCapacity for the zero value).
func NewPair(capacity int) *Pair {
	return &Pair{Update: New(capacity), End: New(capacity)}
}

func (p *Pair) SubmitUpdate(ev kernel.AcctEvent) { p.Update.Push(ev) }
func (p *Pair) SubmitEnd(ev kernel.AcctEvent)     { p.End.Push(ev) }

// Close closes both rings.
func (p *Pair) Close() {
	p.Update.Close()
	p.End.Close()
}

var _ kernel.Emitter = (*Pair)(nil)
