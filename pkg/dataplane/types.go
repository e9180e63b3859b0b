// Package dataplane implements the aetherless packet classification
// fast path: single-pass header parsing, the port-to-handler redirect
// table, per-worker statistics counters, and the permissive/strict
// verdict logic.
package dataplane

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strings"
)

// PortKey mirrors the C struct port_key used by the kernel classifier
// and the control plane. The padding carries no meaning; it fixes the
// key at a hash-friendly 4 bytes.
type PortKey struct {
	Port uint16
	Pad  uint16
}

// PortValue mirrors the C struct port_value: the handler binding
// registered for a destination port.
type PortValue struct {
	PID  uint32
	Addr uint32 // IPv4 address in network byte order
}

// MaxPortEntries is the fixed capacity of the redirect table. Must
// match the max_entries of the kernel port_redirect_map.
const MaxPortEntries = 1024

// Statistics counter indices -- must match the C constants.
const (
	CtrPacketsTotal   = 0
	CtrPacketsMatched = 1
	CtrPacketsPassed  = 2
	CtrPacketsDropped = 3
	CtrMax            = 4
)

// Counters is an aggregated view of the four classification counters.
type Counters struct {
	Total   uint64
	Matched uint64
	Passed  uint64
	Dropped uint64
}

// Verdict is the terminal decision for one packet.
type Verdict uint8

const (
	// VerdictPass forwards the packet to the normal network stack.
	VerdictPass Verdict = iota
	// VerdictDrop discards the packet.
	VerdictDrop
)

func (v Verdict) String() string {
	if v == VerdictDrop {
		return "drop"
	}
	return "pass"
}

// Policy selects the terminal action on a redirect table miss.
type Policy uint8

const (
	// PolicyPermissive passes unregistered traffic to the normal stack.
	PolicyPermissive Policy = iota
	// PolicyStrict drops traffic to ports with no registered handler.
	PolicyStrict
)

func (p Policy) String() string {
	if p == PolicyStrict {
		return "strict"
	}
	return "permissive"
}

// ParsePolicy parses a policy name as it appears in configuration.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "permissive":
		return PolicyPermissive, nil
	case "strict":
		return PolicyStrict, nil
	}
	return PolicyPermissive, fmt.Errorf("unknown policy %q (valid: permissive, strict)", s)
}

// PackAddr converts an IPv4 address to the network-byte-order uint32
// stored in PortValue.
func PackAddr(addr netip.Addr) uint32 {
	b := addr.As4()
	return binary.BigEndian.Uint32(b[:])
}

// UnpackAddr is the inverse of PackAddr.
func UnpackAddr(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}
