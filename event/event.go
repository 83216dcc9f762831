// Package event defines the six flow-level event variants and their
// big-endian, length-prefixed wire codec, per spec §3/§4.4.
package event

import (
	"github.com/guidoreina/netmon/netaddr"
)

// Kind discriminates the event variants on the wire.
type Kind uint8

const (
	KindICMP Kind = iota
	KindUDP
	KindDNS
	KindTCPBegin
	KindTCPData
	KindTCPEnd
)

func (k Kind) String() string {
	switch k {
	case KindICMP:
		return "icmp"
	case KindUDP:
		return "udp"
	case KindDNS:
		return "dns"
	case KindTCPBegin:
		return "tcp_begin"
	case KindTCPData:
		return "tcp_data"
	case KindTCPEnd:
		return "tcp_end"
	default:
		return "unknown"
	}
}

// MinLen4 is the smallest legal serialized record length: an IPv4 base event
// with no variant-specific fields (len prefix not included).
const MinLen4 = 8 + 1 + 1 + 4 + 4 // timestamp + type + addrlen + saddr4 + daddr4

// MinLen6 is MinLen4's IPv6 equivalent.
const MinLen6 = 8 + 1 + 1 + 16 + 16

// MaxLen is the largest legal serialized record length (spec §3).
const MaxLen = 1024

// Base carries the fields common to every event variant.
type Base struct {
	Timestamp uint64 // microseconds since epoch
	Saddr     netaddr.Addr
	Daddr     netaddr.Addr
}

// Event is implemented by every variant; Kind identifies which one.
type Event interface {
	Kind() Kind
	base() Base
}

// ICMP is the icmp event variant.
type ICMP struct {
	Base
	Type        uint8
	Code        uint8
	Transferred uint16
}

func (e *ICMP) Kind() Kind { return KindICMP }
func (e *ICMP) base() Base { return e.Base }

// UDP is the udp event variant.
type UDP struct {
	Base
	Sport, Dport uint16
	Transferred  uint16
}

func (e *UDP) Kind() Kind { return KindUDP }
func (e *UDP) base() Base { return e.Base }

// DNSResponse is one address entry in a DNS event's answer list.
type DNSResponse struct {
	Addr netaddr.Addr
}

// MaxDNSResponses is the hard cap from spec §3/§4.2.
const MaxDNSResponses = 24

// DNS is the dns event variant.
type DNS struct {
	Base
	Sport, Dport uint16
	Transferred  uint16
	QType        uint8
	Domain       string
	Responses    []DNSResponse
}

func (e *DNS) Kind() Kind { return KindDNS }
func (e *DNS) base() Base { return e.Base }

// TCPBegin is the tcp_begin event variant.
type TCPBegin struct {
	Base
	Sport, Dport uint16
}

func (e *TCPBegin) Kind() Kind { return KindTCPBegin }
func (e *TCPBegin) base() Base { return e.Base }

// TCPData is the tcp_data event variant.
type TCPData struct {
	Base
	Sport, Dport uint16
	Creation     uint64
	Payload      uint16
}

func (e *TCPData) Kind() Kind { return KindTCPData }
func (e *TCPData) base() Base { return e.Base }

// TCPEnd is the tcp_end event variant.
type TCPEnd struct {
	Base
	Sport, Dport      uint16
	Creation          uint64
	TransferredClient uint64
	TransferredServer uint64
}

func (e *TCPEnd) Kind() Kind { return KindTCPEnd }
func (e *TCPEnd) base() Base { return e.Base }

// Timestamp returns the event's common timestamp field, used by the reader,
// merger and filter evaluator without needing to type-switch.
func Timestamp(e Event) uint64 { return e.base().Timestamp }

// Addrs returns the event's common source/destination addresses.
func Addrs(e Event) (saddr, daddr netaddr.Addr) {
	b := e.base()
	return b.Saddr, b.Daddr
}
