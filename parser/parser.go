// Package parser walks Ethernet/VLAN/MPLS framing down to IPv4/IPv6 and
// dispatches the L4 payload to caller-supplied hooks, without allocating or
// mutating the packet buffer (spec §4.1). gopacket is deliberately not used
// here: its per-layer decode allocates a layer object per call, which this
// package's zero-allocation contract rules out. gopacket is reserved for
// the capture-transport boundary (see the capture package).
package parser

import (
	"encoding/binary"
	"time"
)

// EtherType values recognised at the outermost layer.
const (
	etherTypeIPv4    = 0x0800
	etherTypeIPv6    = 0x86DD
	etherType8021Q   = 0x8100
	etherType8021AD  = 0x88A8
	etherTypeMPLSUC  = 0x8847
	etherTypeMPLSMC  = 0x8848
	ethernetHeaderLen = 14
)

// IP protocol numbers dispatched to L4 hooks.
const (
	protoICMP   = 1
	protoTCP    = 6
	protoUDP    = 17
	protoICMPv6 = 58
)

// IPv6 extension header next-header values the walk must step over before
// reaching an L4 protocol.
const (
	nhHopByHop    = 0
	nhRouting     = 43
	nhFragment    = 44
	nhESP         = 50
	nhAH          = 51
	nhNoNext      = 59
	nhDestOptions = 60
	nhMobility    = 135
	nhHIP         = 139
	nhShim6       = 140
)

func isExtensionHeader(nxt uint8) bool {
	switch nxt {
	case nhHopByHop, nhRouting, nhFragment, nhESP, nhAH, nhNoNext, nhDestOptions, nhMobility, nhHIP, nhShim6:
		return true
	default:
		return false
	}
}

// Hook is called once an L4 payload has been located. ipPacket is the IP
// packet starting at its header (not the L4 payload); ipHeaderLen is the
// number of bytes of IP (and, for IPv6, extension) headers preceding the
// L4 payload; pktLen is the total IP packet length. A hook returns false
// only to signal a malformed packet; a nil hook is equivalent to "ignore
// this protocol, succeed".
type Hook func(ipPacket []byte, ipHeaderLen, pktLen int, ts time.Time) bool

// Hooks collects the six L4 dispatch points the parser recognises. Any
// subset may be left nil.
type Hooks struct {
	ICMP   Hook
	ICMPv6 Hook
	TCPv4  Hook
	TCPv6  Hook
	UDPv4  Hook
	UDPv6  Hook
}

// Parser walks framing headers and dispatches to Hooks. It holds no
// per-packet state and is safe to reuse across packets and goroutines as
// long as its Hooks are not mutated concurrently.
type Parser struct {
	hooks Hooks
}

// New returns a Parser that dispatches to hooks.
func New(hooks Hooks) *Parser {
	return &Parser{hooks: hooks}
}

func callOrIgnore(h Hook, ipPacket []byte, ipHeaderLen, pktLen int, ts time.Time) bool {
	if h == nil {
		return true
	}
	return h(ipPacket, ipHeaderLen, pktLen, ts)
}

// ProcessEthernet parses buf as an Ethernet frame (stripping VLAN and MPLS
// framing as needed) and dispatches the IP packet it contains. It returns
// false for frames too short or otherwise malformed at the framing layer;
// an unrecognised ether_type is reported as true ("captured but ignored").
func (p *Parser) ProcessEthernet(buf []byte, ts time.Time) bool {
	if len(buf) <= ethernetHeaderLen {
		return false
	}

	b := buf[12:]
	left := len(buf) - ethernetHeaderLen

	for {
		etherType := uint16(b[0])<<8 | uint16(b[1])

		switch etherType {
		case etherTypeIPv4:
			return p.ProcessIPv4(b[2:], ts)
		case etherTypeIPv6:
			return p.ProcessIPv6(b[2:], ts)
		case etherType8021Q, etherType8021AD:
			if left <= 4 {
				return false
			}
			b = b[4:]
			left -= 4
		case etherTypeMPLSUC, etherTypeMPLSMC:
			b = b[2:]

			for {
				if left <= 4 {
					return false
				}

				if b[2]&0x01 != 0 {
					label := (uint32(b[0])<<12 | uint32(b[1])<<8 | uint32(b[2])>>4) & 0x0fffff
					switch label {
					case 0:
						return p.ProcessIPv4(b[4:], ts)
					case 2:
						return p.ProcessIPv6(b[4:], ts)
					default:
						switch b[4] & 0xf0 {
						case 0x40:
							return p.ProcessIPv4(b[4:], ts)
						case 0x60:
							return p.ProcessIPv6(b[4:], ts)
						default:
							return true
						}
					}
				}

				b = b[4:]
				left -= 4
			}
		default:
			return true
		}
	}
}

// ipv4HeaderLen is the fixed-size portion every IPv4 header carries, before
// the variable-length options the IHL field may add.
const ipv4HeaderLen = 20

// ProcessIPv4 parses buf as an IPv4 packet (no preceding framing) and
// dispatches to the matching L4 hook.
func (p *Parser) ProcessIPv4(buf []byte, ts time.Time) bool {
	if len(buf) <= ipv4HeaderLen {
		return false
	}

	ihl := int(buf[0] & 0x0f)
	totLen := int(binary.BigEndian.Uint16(buf[2:4]))

	if ihl < 5 || len(buf) <= ihl*4 || len(buf) != totLen {
		return false
	}

	protocol := buf[9]
	hdrLen := ihl * 4

	switch protocol {
	case protoICMP:
		return callOrIgnore(p.hooks.ICMP, buf, hdrLen, len(buf), ts)
	case protoTCP:
		return callOrIgnore(p.hooks.TCPv4, buf, hdrLen, len(buf), ts)
	case protoUDP:
		return callOrIgnore(p.hooks.UDPv4, buf, hdrLen, len(buf), ts)
	default:
		return true
	}
}

// ipv6HeaderLen is the fixed IPv6 header size (extension headers, if any,
// follow it).
const ipv6HeaderLen = 40

// ProcessIPv6 parses buf as an IPv6 packet (no preceding framing), walks
// any extension header chain, and dispatches to the matching L4 hook.
func (p *Parser) ProcessIPv6(buf []byte, ts time.Time) bool {
	if len(buf) <= ipv6HeaderLen {
		return false
	}

	payloadLen := int(binary.BigEndian.Uint16(buf[4:6]))
	if ipv6HeaderLen+payloadLen != len(buf) {
		return false
	}

	nxt := buf[6]

	switch nxt {
	case protoICMPv6:
		return callOrIgnore(p.hooks.ICMPv6, buf, ipv6HeaderLen, len(buf), ts)
	case protoTCP:
		return callOrIgnore(p.hooks.TCPv6, buf, ipv6HeaderLen, len(buf), ts)
	case protoUDP:
		return callOrIgnore(p.hooks.UDPv6, buf, ipv6HeaderLen, len(buf), ts)
	}

	off := ipv6HeaderLen

	for isExtensionHeader(nxt) {
		if payloadLen < 2 {
			return false
		}

		ext := buf[off:]
		extLen := (int(ext[1]) + 1) * 8

		if extLen > payloadLen {
			return false
		}

		off += extLen
		nxt = ext[0]

		switch nxt {
		case protoICMPv6:
			return callOrIgnore(p.hooks.ICMPv6, buf, off, len(buf), ts)
		case protoTCP:
			return callOrIgnore(p.hooks.TCPv6, buf, off, len(buf), ts)
		case protoUDP:
			return callOrIgnore(p.hooks.UDPv6, buf, off, len(buf), ts)
		default:
			payloadLen -= extLen
		}
	}

	return true
}
