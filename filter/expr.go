package filter

import (
	"net"
	"strings"

	"github.com/guidoreina/netmon/event"
	"github.com/guidoreina/netmon/netaddr"
)

// Expr is a compiled filter expression. Evaluate dispatches once per event
// variant and reports whether ev matches; srcHost/dstHost are the resolved
// hostnames for the event's source/destination address, or "" if
// unresolved (spec §4.6: "resolved or embedded strings").
type Expr interface {
	Evaluate(ev event.Event, srcHost, dstHost string) bool
}

type andExpr struct {
	left, right Expr
}

func (e *andExpr) Evaluate(ev event.Event, srcHost, dstHost string) bool {
	return e.left.Evaluate(ev, srcHost, dstHost) && e.right.Evaluate(ev, srcHost, dstHost)
}

type orExpr struct {
	left, right Expr
}

func (e *orExpr) Evaluate(ev event.Event, srcHost, dstHost string) bool {
	return e.left.Evaluate(ev, srcHost, dstHost) || e.right.Evaluate(ev, srcHost, dstHost)
}

// leafExpr is a single "identifier relational-operator value" comparison.
// There is no unary NOT here: the published grammar has no negation
// production and the original parser never constructs a not_expression,
// even though the expression class hierarchy declares one.
type leafExpr struct {
	id  identifier
	op  operator
	num uint64

	str string

	mask    netaddr.Mask
	hasMask bool
}

func (e *leafExpr) Evaluate(ev event.Event, srcHost, dstHost string) bool {
	switch v := ev.(type) {
	case *event.ICMP:
		return e.evalICMP(v, srcHost, dstHost)
	case *event.UDP:
		return e.evalUDP(v, srcHost, dstHost)
	case *event.DNS:
		return e.evalDNS(v, srcHost, dstHost)
	case *event.TCPBegin:
		return e.evalTCPBegin(v, srcHost, dstHost)
	case *event.TCPData:
		return e.evalTCPData(v, srcHost, dstHost)
	case *event.TCPEnd:
		return e.evalTCPEnd(v, srcHost, dstHost)
	default:
		return false
	}
}

func (e *leafExpr) cmpNumber(n uint64) bool {
	switch e.op {
	case opEqual:
		return n == e.num
	case opNotEqual:
		return n != e.num
	case opLess:
		return n < e.num
	case opGreater:
		return n > e.num
	case opLessEqual:
		return n <= e.num
	case opGreaterEqual:
		return n >= e.num
	default:
		return false
	}
}

func (e *leafExpr) cmpEventType(k event.Kind) bool {
	return e.cmpNumber(uint64(k))
}

func (e *leafExpr) matchAddr(addr netaddr.Addr) bool {
	res := e.mask.Match(addr)
	if e.op == opNotEqual {
		return !res
	}
	return res
}

func (e *leafExpr) matchEitherAddr(saddr, daddr netaddr.Addr) bool {
	res := e.mask.Match(saddr) || e.mask.Match(daddr)
	if e.op == opNotEqual {
		return !res
	}
	return res
}

func (e *leafExpr) matchHostname(host string) bool {
	res := host != "" && strings.Contains(strings.ToLower(host), strings.ToLower(e.str))
	if e.op == opNotEqual {
		return !res
	}
	return res
}

func (e *leafExpr) matchHostnames(srcHost, dstHost string) bool {
	res := (srcHost != "" && strings.Contains(strings.ToLower(srcHost), strings.ToLower(e.str))) ||
		(dstHost != "" && strings.Contains(strings.ToLower(dstHost), strings.ToLower(e.str)))
	if e.op == opNotEqual {
		return !res
	}
	return res
}

// matchDomain is an exact case-insensitive match, not a substring match:
// the original's identifier::domain case uses same_string, unlike the
// hostname identifiers above which use strcasestr.
func (e *leafExpr) matchDomain(domain string) bool {
	res := strings.EqualFold(domain, e.str)
	if e.op == opNotEqual {
		return !res
	}
	return res
}

func (e *leafExpr) matchDNSResponse(responses []event.DNSResponse) bool {
	want, ok := parseIPText(e.str)

	res := false
	if ok {
		for _, r := range responses {
			if netaddr.Equal(r.Addr, want) {
				res = true
				break
			}
		}
	}

	if e.op == opNotEqual {
		return !res
	}
	return res
}

func (e *leafExpr) matchPortEither(sport, dport uint16) bool {
	s, d := uint64(sport), uint64(dport)

	switch e.op {
	case opEqual:
		return s == e.num || d == e.num
	case opNotEqual:
		return !(s == e.num || d == e.num)
	case opLess:
		return s < e.num || d < e.num
	case opGreater:
		return s > e.num || d > e.num
	case opLessEqual:
		return s <= e.num || d <= e.num
	case opGreaterEqual:
		return s >= e.num || d >= e.num
	default:
		return false
	}
}

func parseIPText(s string) (netaddr.Addr, bool) {
	ip := net.ParseIP(s)
	if ip == nil {
		return netaddr.Addr{}, false
	}

	if v4 := ip.To4(); v4 != nil {
		a, err := netaddr.FromBytes(v4)
		return a, err == nil
	}

	a, err := netaddr.FromBytes(ip.To16())
	return a, err == nil
}
