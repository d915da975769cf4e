// Package collector implements the userspace pipeline stages that sit
// between the ring buffers and wherever flow records ultimately go:
// stale-flow recovery, pod enrichment, upload throttling, remote
// forwarding and local introspection.
package collector

import (
	"github.com/flowacctd/conntracct/internal/kernel"
	"github.com/hashicorp/go-multierror"
)

// Collector is the pipeline stage interface every stage in this package
// implements. Process must not block indefinitely; a stage that needs to
// buffer should do so internally and flush on Close.
type Collector interface {
	Process(ev kernel.AcctEvent) error
	Close() error
}

// Tee fans one stream of events out to two collectors. Not to be
// confused with a coffee collector.
type Tee struct {
	Dst1 Collector
	Dst2 Collector
}

func (t Tee) Process(ev kernel.AcctEvent) error {
	var result *multierror.Error
	if err := t.Dst1.Process(ev); err != nil {
		result = multierror.Append(result, err)
	}
	if err := t.Dst2.Process(ev); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (t Tee) Close() error {
	var result *multierror.Error
	if err := t.Dst1.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := t.Dst2.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Func adapts a plain function into a Collector with a no-op Close, for
// terminal stages (e.g. test sinks) that don't own a resource to
// release.
type Func func(ev kernel.AcctEvent) error

func (f Func) Process(ev kernel.AcctEvent) error { return f(ev) }
func (f Func) Close() error                      { return nil }

var (
	_ Collector = Tee{}
	_ Collector = Func(nil)
)
