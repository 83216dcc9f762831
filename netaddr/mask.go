package netaddr

import (
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidMask is returned when a CIDR string cannot be parsed.
var ErrInvalidMask = errors.New("netaddr: invalid CIDR network mask")

// Mask is a CIDR network mask that can be matched directly against raw
// address bytes, mirroring guidoreina/netmon's net::mask.
type Mask struct {
	v6      bool
	network [Len16]byte
	bits    [Len16]byte // precomputed mask bytes
}

// ParseMask builds a Mask from a "a.b.c.d/p" or "a:b:c::/p" CIDR string, or
// from a bare address ("a.b.c.d"), which matches only that single address
// (prefix /32 or /128), mirroring net::mask::build accepting both forms.
func ParseMask(s string) (Mask, error) {
	var m Mask

	idx := strings.IndexByte(s, '/')

	addrPart := s
	prefixPart := ""
	if idx >= 0 {
		addrPart = s[:idx]
		prefixPart = s[idx+1:]
	}

	ip := net.ParseIP(addrPart)
	if ip == nil {
		return m, errors.Wrap(ErrInvalidMask, s)
	}

	isV6 := ip.To4() == nil || strings.Contains(addrPart, ":")

	var prefix int
	if prefixPart == "" {
		if isV6 {
			prefix = 128
		} else {
			prefix = 32
		}
	} else {
		var err error
		prefix, err = strconv.Atoi(prefixPart)
		if err != nil {
			return m, errors.Wrap(ErrInvalidMask, s)
		}
	}

	var raw []byte
	if ip4 := ip.To4(); ip4 != nil && !isV6 {
		raw = ip4
		m.v6 = false
		if prefix < 0 || prefix > 32 {
			return m, errors.Wrap(ErrInvalidMask, s)
		}
	} else {
		raw = ip.To16()
		m.v6 = true
		if prefix < 0 || prefix > 128 {
			return m, errors.Wrap(ErrInvalidMask, s)
		}
	}

	maskBits := net.CIDRMask(prefix, len(raw)*8)

	for i := range raw {
		m.bits[i] = maskBits[i]
		m.network[i] = raw[i] & maskBits[i]
	}

	return m, nil
}

// Match reports whether addr's top bits equal the mask's network address.
func (m Mask) Match(addr Addr) bool {
	if m.v6 != addr.IsIPv6() {
		return false
	}

	b := addr.Bytes()
	for i := range b {
		if b[i]&m.bits[i] != m.network[i] {
			return false
		}
	}

	return true
}
