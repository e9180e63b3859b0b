package dataplane

import (
	"encoding/binary"
	"testing"
)

// buildIPv4 builds an Ethernet frame carrying an IPv4 packet with the
// given protocol, header length (in 32-bit words), and transport bytes.
func buildIPv4(proto byte, ihl int, transport []byte) []byte {
	frame := make([]byte, ethHeaderLen+ihl*4, ethHeaderLen+ihl*4+len(transport))
	binary.BigEndian.PutUint16(frame[12:14], etherTypeIPv4)
	frame[ethHeaderLen] = 0x40 | byte(ihl)
	frame[ethHeaderLen+ipv4ProtoOffset] = proto
	return append(frame, transport...)
}

func tcpHeader(dstPort uint16) []byte {
	h := make([]byte, tcpHeaderLen)
	binary.BigEndian.PutUint16(h[dstPortOffset:], dstPort)
	return h
}

func udpHeader(dstPort uint16) []byte {
	h := make([]byte, udpHeaderLen)
	binary.BigEndian.PutUint16(h[dstPortOffset:], dstPort)
	return h
}

func nonIPv4Frame() []byte {
	frame := make([]byte, 60)
	binary.BigEndian.PutUint16(frame[12:14], 0x86dd) // IPv6
	return frame
}

func TestDestPort(t *testing.T) {
	tests := []struct {
		name string
		pkt  []byte
		want uint16
	}{
		{
			name: "empty frame",
			pkt:  nil,
			want: 0,
		},
		{
			name: "frame shorter than ethernet header",
			pkt:  make([]byte, ethHeaderLen-1),
			want: 0,
		},
		{
			name: "non-ipv4 ethertype",
			pkt:  nonIPv4Frame(),
			want: 0,
		},
		{
			name: "ipv4 header truncated",
			pkt:  buildIPv4(protoTCP, 5, tcpHeader(80))[:ethHeaderLen+10],
			want: 0,
		},
		{
			name: "tcp destination port",
			pkt:  buildIPv4(protoTCP, 5, tcpHeader(8080)),
			want: 8080,
		},
		{
			name: "udp destination port",
			pkt:  buildIPv4(protoUDP, 5, udpHeader(53)),
			want: 53,
		},
		{
			name: "tcp with ip options",
			pkt:  buildIPv4(protoTCP, 6, tcpHeader(8080)),
			want: 8080,
		},
		{
			name: "tcp header truncated",
			pkt:  buildIPv4(protoTCP, 5, tcpHeader(8080)[:tcpHeaderLen-1]),
			want: 0,
		},
		{
			name: "udp header truncated",
			pkt:  buildIPv4(protoUDP, 5, udpHeader(53)[:udpHeaderLen-1]),
			want: 0,
		},
		{
			name: "icmp protocol",
			pkt:  buildIPv4(1, 5, make([]byte, 8)),
			want: 0,
		},
		{
			name: "port zero stays sentinel",
			pkt:  buildIPv4(protoTCP, 5, tcpHeader(0)),
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DestPort(tt.pkt); got != tt.want {
				t.Errorf("DestPort() = %d, want %d", got, tt.want)
			}
		})
	}
}

// An IHL below 5 words is malformed and must fail the parse even when
// the buffer would be long enough to read past it.
func TestDestPortShortIHL(t *testing.T) {
	pkt := buildIPv4(protoTCP, 5, tcpHeader(8080))
	pkt[ethHeaderLen] = 0x44 // version 4, ihl 4
	pkt = append(pkt, make([]byte, 64)...)

	if got := DestPort(pkt); got != 0 {
		t.Errorf("DestPort() = %d, want 0 for ihl < 5", got)
	}
}
