// Package netaddr provides raw, allocation-free representations of IPv4/IPv6
// addresses and a CIDR mask matcher that works directly against the 4- or
// 16-byte address forms stored in event records, without a round trip
// through net.IP string formatting.
package netaddr

import (
	"bytes"
	"encoding/binary"
	"net"

	"github.com/pkg/errors"

	"github.com/guidoreina/netmon/internal/lookup3"
)

// ErrInvalidLength is returned when an address slice is neither 4 nor 16 bytes.
var ErrInvalidLength = errors.New("netaddr: address length must be 4 or 16")

// Len4 and Len16 name the only two legal address lengths carried on the wire.
const (
	Len4  = 4
	Len16 = 16
)

// Addr is a raw network-order address, either 4 or 16 bytes.
type Addr struct {
	b [Len16]byte
	n int
}

// FromBytes copies b (len 4 or 16) into a new Addr.
func FromBytes(b []byte) (Addr, error) {
	var a Addr
	switch len(b) {
	case Len4, Len16:
		a.n = len(b)
		copy(a.b[:a.n], b)
		return a, nil
	default:
		return a, ErrInvalidLength
	}
}

// Len returns 4 or 16.
func (a Addr) Len() int { return a.n }

// Bytes returns the address's raw bytes.
func (a Addr) Bytes() []byte { return a.b[:a.n] }

// IsIPv6 reports whether the address is a 16-byte address.
func (a Addr) IsIPv6() bool { return a.n == Len16 }

// Compare returns the lexicographic byte comparison of two addresses, as
// used by the TCP tracker's key canonicalisation. Addresses of differing
// length compare by length first.
func Compare(a, b Addr) int {
	if a.n != b.n {
		if a.n < b.n {
			return -1
		}
		return 1
	}
	return bytes.Compare(a.b[:a.n], b.b[:b.n])
}

// Equal reports whether a and b are the same address.
func Equal(a, b Addr) bool {
	return a.n == b.n && bytes.Equal(a.b[:a.n], b.b[:b.n])
}

// Hash returns a 32-bit digest of the address, used by the TCP tracker to
// bucket connections. An IPv4 address hashes to its raw 4 bytes; an IPv6
// address folds its four 32-bit words through lookup3.Hash3Words.
func (a Addr) Hash() uint32 {
	if a.n == Len4 {
		return binary.BigEndian.Uint32(a.b[:Len4])
	}

	w0 := binary.BigEndian.Uint32(a.b[0:4])
	w1 := binary.BigEndian.Uint32(a.b[4:8])
	w2 := binary.BigEndian.Uint32(a.b[8:12])
	w3 := binary.BigEndian.Uint32(a.b[12:16])
	return lookup3.Hash3Words(w0^w1, w2, w3, 0)
}

// String renders the address using the standard library's net.IP formatter,
// for logging and printers only — never on the hot path.
func (a Addr) String() string {
	return net.IP(a.Bytes()).String()
}
