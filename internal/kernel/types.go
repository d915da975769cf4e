// Package kernel implements the probe-side logic of the flow-accounting
// sampler: the maps, extractors, rate limiter, sampler and probe handlers
// that would run attached to the host's connection tracker.
package kernel

import (
	"encoding/binary"
	"net"
)

// FlowKey is the kernel's opaque per-flow handle. Userspace must not
// interpret it as an address; it is unique only for the flow's lifetime,
// and reuse after a destroy event is allowed and benign.
type FlowKey uint64

// AcctEventSize is the on-wire size of AcctEvent, per the packed layout
// in spec.md §6.
const AcctEventSize = 101

// AcctEvent is the wire record emitted on both the update and end perf
// arrays. Field order and sizes match spec.md §6 exactly.
type AcctEvent struct {
	StartNS     uint64
	TSNS        uint64
	CPtr        FlowKey
	SrcAddr     [16]byte
	DstAddr     [16]byte
	PacketsOrig uint64
	BytesOrig   uint64
	PacketsRet  uint64
	BytesRet    uint64
	ConnMark    uint32
	NetNS       uint32
	SrcPort     uint16 // port number; Encode writes it in network byte order
	DstPort     uint16 // port number; Encode writes it in network byte order
	Proto       uint8
}

// PacketsTotal returns the combined packet count across both directions,
// the cooldown decision's input (spec.md §4.4 step 4).
func (e *AcctEvent) PacketsTotal() uint64 {
	return e.PacketsOrig + e.PacketsRet
}

// SetSrcIP writes ip into SrcAddr using the 16-byte union layout: IPv4 in
// the first 4 bytes with the rest zeroed, or a full IPv6 address.
func (e *AcctEvent) SetSrcIP(ip net.IP) {
	setAddr(&e.SrcAddr, ip)
}

// SetDstIP writes ip into DstAddr using the same union layout as SetSrcIP.
func (e *AcctEvent) SetDstIP(ip net.IP) {
	setAddr(&e.DstAddr, ip)
}

func setAddr(out *[16]byte, ip net.IP) {
	*out = [16]byte{}
	if ip == nil {
		return
	}
	if v4 := ip.To4(); v4 != nil {
		copy(out[0:4], v4)
		return
	}
	if v6 := ip.To16(); v6 != nil {
		copy(out[:], v6)
	}
}

// Encode serializes the event into the packed little-endian wire layout
// described in spec.md §6.
func (e *AcctEvent) Encode() []byte {
	buf := make([]byte, AcctEventSize)
	binary.LittleEndian.PutUint64(buf[0:8], e.StartNS)
	binary.LittleEndian.PutUint64(buf[8:16], e.TSNS)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(e.CPtr))
	copy(buf[24:40], e.SrcAddr[:])
	copy(buf[40:56], e.DstAddr[:])
	binary.LittleEndian.PutUint64(buf[56:64], e.PacketsOrig)
	binary.LittleEndian.PutUint64(buf[64:72], e.BytesOrig)
	binary.LittleEndian.PutUint64(buf[72:80], e.PacketsRet)
	binary.LittleEndian.PutUint64(buf[80:88], e.BytesRet)
	binary.LittleEndian.PutUint32(buf[88:92], e.ConnMark)
	binary.LittleEndian.PutUint32(buf[92:96], e.NetNS)
	// Ports are plain port numbers in the struct; they are written
	// big-endian so the wire carries them in network byte order.
	binary.BigEndian.PutUint16(buf[96:98], e.SrcPort)
	binary.BigEndian.PutUint16(buf[98:100], e.DstPort)
	buf[100] = e.Proto
	return buf
}

// DecodeAcctEvent parses the packed wire layout produced by Encode.
func DecodeAcctEvent(buf []byte) (AcctEvent, bool) {
	var e AcctEvent
	if len(buf) < AcctEventSize {
		return e, false
	}
	e.StartNS = binary.LittleEndian.Uint64(buf[0:8])
	e.TSNS = binary.LittleEndian.Uint64(buf[8:16])
	e.CPtr = FlowKey(binary.LittleEndian.Uint64(buf[16:24]))
	copy(e.SrcAddr[:], buf[24:40])
	copy(e.DstAddr[:], buf[40:56])
	e.PacketsOrig = binary.LittleEndian.Uint64(buf[56:64])
	e.BytesOrig = binary.LittleEndian.Uint64(buf[64:72])
	e.PacketsRet = binary.LittleEndian.Uint64(buf[72:80])
	e.BytesRet = binary.LittleEndian.Uint64(buf[80:88])
	e.ConnMark = binary.LittleEndian.Uint32(buf[88:92])
	e.NetNS = binary.LittleEndian.Uint32(buf[92:96])
	e.SrcPort = binary.BigEndian.Uint16(buf[96:98])
	e.DstPort = binary.BigEndian.Uint16(buf[98:100])
	e.Proto = buf[100]
	return e, true
}
