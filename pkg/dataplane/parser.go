package dataplane

import "encoding/binary"

// Header layout constants.
const (
	ethHeaderLen  = 14
	etherTypeIPv4 = 0x0800

	ipv4MinHeaderLen = 20
	ipv4ProtoOffset  = 9

	protoTCP = 6
	protoUDP = 17

	tcpHeaderLen = 20
	udpHeaderLen = 8

	// Destination port offset within a TCP or UDP header.
	dstPortOffset = 2
)

// DestPort walks Ethernet -> IPv4 -> TCP/UDP and returns the transport
// destination port in host byte order, or 0 if the frame is not IPv4
// TCP/UDP or any header does not fit within the buffer. Port 0 is
// reserved as the unparseable sentinel and never matches a rule.
//
// The walk is a fixed sequence of forward bounds checks with no loops.
// The kernel variant of this classifier runs under the BPF verifier;
// keeping the same branch-bounded structure here keeps the two
// implementations auditable against each other.
func DestPort(pkt []byte) uint16 {
	if len(pkt) < ethHeaderLen {
		return 0
	}
	if binary.BigEndian.Uint16(pkt[12:14]) != etherTypeIPv4 {
		return 0
	}

	if len(pkt) < ethHeaderLen+ipv4MinHeaderLen {
		return 0
	}
	ihl := int(pkt[ethHeaderLen] & 0x0f)
	if ihl < 5 {
		return 0
	}
	transport := ethHeaderLen + ihl*4

	switch pkt[ethHeaderLen+ipv4ProtoOffset] {
	case protoTCP:
		if len(pkt) < transport+tcpHeaderLen {
			return 0
		}
		return binary.BigEndian.Uint16(pkt[transport+dstPortOffset:])
	case protoUDP:
		if len(pkt) < transport+udpHeaderLen {
			return 0
		}
		return binary.BigEndian.Uint16(pkt[transport+dstPortOffset:])
	}
	return 0
}
