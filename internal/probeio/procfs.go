package probeio

import (
	"bufio"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"

	"github.com/flowacctd/conntracct/internal/kernel"
	"github.com/flowacctd/conntracct/printer"
)

// ProcfsSource polls /proc/net/nf_conntrack on an interval and turns the
// diff against the previous poll into attachment-site firings: a tuple
// seen for the first time is a FirstConfirm, one seen again with a higher
// combined packet count is a RefreshEntry+RefreshReturn pair, and one that has
// disappeared is a Destroy.
//
// This stands in for a real kprobe/eBPF attachment (spec.md §4.1 assumes
// the probe framework is provided); procfs exposes the same conntrack
// state without requiring kernel-probe privileges, at the cost of
// per-event precision — a flow can only be observed at poll granularity,
// and the flow "pointer" here is a stable hash of the tuple rather than
// the kernel's real struct nf_conn address. It does not see the netns
// inode conntrack entries belong to, so NetNS is left at zero.
type ProcfsSource struct {
	path     string
	interval time.Duration

	mu    sync.Mutex
	seen  map[kernel.FlowKey]*kernel.FlowBlock
	out   chan RawFlowEvent
	done  chan struct{}
	wg    sync.WaitGroup
	stash uint64
}

// NewProcfsSource returns a source polling the given conntrack procfs
// path (usually "/proc/net/nf_conntrack") every interval.
func NewProcfsSource(path string, interval time.Duration) *ProcfsSource {
	if interval <= 0 {
		interval = time.Second
	}
	s := &ProcfsSource{
		path:     path,
		interval: interval,
		seen:     make(map[kernel.FlowKey]*kernel.FlowBlock),
		out:      make(chan RawFlowEvent, 1024),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *ProcfsSource) Events() <-chan RawFlowEvent { return s.out }

func (s *ProcfsSource) Stop() {
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}
	s.wg.Wait()
	close(s.out)
}

func (s *ProcfsSource) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

func (s *ProcfsSource) poll() {
	f, err := os.Open(s.path)
	if err != nil {
		printer.Debugf("probeio: failed to open %s: %v\n", s.path, err)
		return
	}
	defer f.Close()

	now := uint64(time.Now().UnixNano())
	current := make(map[kernel.FlowKey]*kernel.FlowBlock)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		block, ok := parseConntrackLine(scanner.Text())
		if !ok {
			continue
		}
		current[block.Key] = block
	}

	s.mu.Lock()
	prev := s.seen
	s.seen = current
	s.mu.Unlock()

	for key, block := range current {
		old, existed := prev[key]
		if !existed {
			s.emit(RawFlowEvent{Site: SiteFirstConfirm, Block: block, NowNS: now})
			continue
		}
		if hasNewPackets(old, block) {
			stashID := s.nextStashID()
			s.emit(RawFlowEvent{Site: SiteRefreshEntry, Block: block, StashID: stashID, NowNS: now})
			s.emit(RawFlowEvent{Site: SiteRefreshReturn, Block: block, StashID: stashID, NowNS: now})
		}
	}

	for key, block := range prev {
		if _, stillThere := current[key]; !stillThere {
			s.emit(RawFlowEvent{Site: SiteDestroy, Block: block, NowNS: now})
		}
	}
}

func (s *ProcfsSource) nextStashID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stash++
	return s.stash
}

func (s *ProcfsSource) emit(ev RawFlowEvent) {
	select {
	case s.out <- ev:
	case <-s.done:
	}
}

// hasNewPackets reports whether cur has a higher combined packet count
// than old, the previously observed block for the same flow, i.e.
// whether this poll should be treated as a counter refresh.
func hasNewPackets(old, cur *kernel.FlowBlock) bool {
	oc := old.Counters()
	nc := cur.Counters()
	return nc.PacketsOrig+nc.PacketsRet > oc.PacketsOrig+oc.PacketsRet
}

// parseConntrackLine parses one line of /proc/net/nf_conntrack. Lines
// look like:
//
//	ipv4 2 tcp 6 431999 ESTABLISHED src=10.0.0.1 dst=10.0.0.2 sport=1234 \
//	  dport=80 packets=10 bytes=840 src=10.0.0.2 dst=10.0.0.1 sport=80 \
//	  dport=1234 packets=8 bytes=960 [ASSURED] mark=0 use=2
//
// The tuple, proto and both directions' counters are extracted; fields
// this format does not carry (netns, start timestamp) are left at their
// zero values, matching the "missing extension" degrade rule of spec.md
// §4.2 rather than failing the whole line.
func parseConntrackLine(line string) (*kernel.FlowBlock, bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return nil, false
	}

	protoName := fields[2]
	protoNum, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, false
	}

	kv := make(map[string][]string)
	for _, f := range fields {
		eq := strings.IndexByte(f, '=')
		if eq < 0 {
			continue
		}
		k, v := f[:eq], f[eq+1:]
		kv[k] = append(kv[k], v)
	}

	srcs := kv["src"]
	dsts := kv["dst"]
	sports := kv["sport"]
	dports := kv["dport"]
	packetsList := kv["packets"]
	bytesList := kv["bytes"]
	marks := kv["mark"]

	if len(srcs) == 0 || len(dsts) == 0 {
		return nil, false
	}

	srcIP := net.ParseIP(srcs[0])
	dstIP := net.ParseIP(dsts[0])

	var srcPort, dstPort uint16
	if len(sports) > 0 {
		if p, err := strconv.Atoi(sports[0]); err == nil {
			srcPort = uint16(p)
		}
	}
	if len(dports) > 0 {
		if p, err := strconv.Atoi(dports[0]); err == nil {
			dstPort = uint16(p)
		}
	}

	var packetsOrig, bytesOrig, packetsRet, bytesRet uint64
	if len(packetsList) > 0 {
		packetsOrig, _ = strconv.ParseUint(packetsList[0], 10, 64)
	}
	if len(bytesList) > 0 {
		bytesOrig, _ = strconv.ParseUint(bytesList[0], 10, 64)
	}
	if len(packetsList) > 1 {
		packetsRet, _ = strconv.ParseUint(packetsList[1], 10, 64)
	}
	if len(bytesList) > 1 {
		bytesRet, _ = strconv.ParseUint(bytesList[1], 10, 64)
	}

	var mark uint64
	if len(marks) > 0 {
		mark, _ = strconv.ParseUint(marks[0], 10, 32)
	}

	key := tupleKey(protoName, srcIP, dstIP, srcPort, dstPort)
	block := kernel.NewFlowBlock(key, kernel.Tuple{
		Proto:   uint8(protoNum),
		SrcIP:   srcIP,
		DstIP:   dstIP,
		SrcPort: srcPort,
		DstPort: dstPort,
	}).WithAccounting(kernel.Counters{
		PacketsOrig: packetsOrig,
		BytesOrig:   bytesOrig,
		PacketsRet:  packetsRet,
		BytesRet:    bytesRet,
	}).WithMark(uint32(mark))

	return block, true
}

// tupleKey derives a stable FlowKey from a flow's original-direction
// tuple. Real conntrack entries are identified by kernel pointer; procfs
// offers no such handle, so the tuple itself — which is fixed for the
// flow's lifetime — serves as a stand-in unique key.
func tupleKey(proto string, src, dst net.IP, sport, dport uint16) kernel.FlowKey {
	h := xxhash.New64()
	h.WriteString(proto)
	h.Write(src)
	h.Write(dst)
	h.Write([]byte{byte(sport >> 8), byte(sport), byte(dport >> 8), byte(dport)})
	return kernel.FlowKey(h.Sum64())
}
