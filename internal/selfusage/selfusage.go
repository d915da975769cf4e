// Package selfusage tracks the sampler daemon's own CPU and memory
// footprint, the ambient overhead check every long-running resident
// agent needs (spec.md's budget is about the kernel-side sampler, not
// the userspace process watching it, but an agent that silently eats a
// core is still an operational problem).
package selfusage

import (
	"github.com/c9s/goprocinfo/linux"
	"github.com/pkg/errors"
)

const (
	selfStatusFile = "/proc/self/status"
	selfStatFile   = "/proc/self/stat"
	allStatFile    = "/proc/stat"
)

// Usage is a point-in-time snapshot of this process's overhead.
type Usage struct {
	// RelativeCPU is this process's user+system CPU time since the process
	// started, divided by the whole system's user+system CPU time since
	// the Monitor was created.
	RelativeCPU float64
	// VMPeak is the peak virtual memory size, in kB, reported by the
	// kernel for this process.
	VMPeak uint64
}

// Monitor samples Usage on demand, baselined against the system-wide CPU
// time observed when it was created.
type Monitor struct {
	baseline *linux.Stat
}

// NewMonitor reads the baseline system-wide CPU counters. Fails if procfs
// is not present (e.g. running outside Linux), matching usage.Init's
// contract.
func NewMonitor() (*Monitor, error) {
	baseline, err := linux.ReadStat(allStatFile)
	if err != nil {
		return nil, errors.Wrapf(err, "selfusage: failed to read %s", allStatFile)
	}
	return &Monitor{baseline: baseline}, nil
}

// Sample returns this process's relative CPU usage (see
// Usage.RelativeCPU) and its peak virtual memory size.
func (m *Monitor) Sample() (Usage, error) {
	status, err := linux.ReadProcessStatus(selfStatusFile)
	if err != nil {
		return Usage{}, errors.Wrapf(err, "selfusage: failed to read %s", selfStatusFile)
	}

	stat, err := linux.ReadProcessStat(selfStatFile)
	if err != nil {
		return Usage{}, errors.Wrapf(err, "selfusage: failed to read %s", selfStatFile)
	}

	current, err := linux.ReadStat(allStatFile)
	if err != nil {
		return Usage{}, errors.Wrapf(err, "selfusage: failed to read %s", allStatFile)
	}

	selfCPU := float64(stat.Utime) + float64(stat.Stime)
	allCPUSinceStart := float64(current.CPUStatAll.User-m.baseline.CPUStatAll.User) +
		float64(current.CPUStatAll.System-m.baseline.CPUStatAll.System)

	var relative float64
	if allCPUSinceStart > 0 {
		relative = selfCPU / allCPUSinceStart
	}

	return Usage{
		RelativeCPU: relative,
		VMPeak:      status.VmPeak,
	}, nil
}
