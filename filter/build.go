package filter

import (
	"strconv"
	"strings"
	"time"

	"github.com/guidoreina/netmon/event"
	"github.com/guidoreina/netmon/netaddr"
)

var eventTypeLiterals = map[string]event.Kind{
	"icmp":      event.KindICMP,
	"udp":       event.KindUDP,
	"dns":       event.KindDNS,
	"tcp_begin": event.KindTCPBegin,
	"tcp_data":  event.KindTCPData,
	"tcp_end":   event.KindTCPEnd,
}

func parseEventType(s string) (event.Kind, bool) {
	k, ok := eventTypeLiterals[strings.ToLower(s)]
	return k, ok
}

// parseTimestamp parses "YYYY/MM/DD hh:mm:ss[.uuuuuu]" in local time into
// microseconds since epoch, matching the original's mktime()-based
// parse_timestamp (local time, not UTC).
func parseTimestamp(s string, pos int) (uint64, error) {
	const layout = "2006/01/02 15:04:05"

	base := s
	frac := ""
	switch {
	case len(s) == 19:
	case len(s) > 19 && s[19] == '.':
		base = s[:19]
		frac = s[20:]
	default:
		return 0, syntaxErrorf(pos, "invalid timestamp %q", s)
	}

	t, err := time.ParseInLocation(layout, base, time.Local)
	if err != nil {
		return 0, syntaxErrorf(pos, "invalid timestamp %q", s)
	}

	var usec uint64
	if frac != "" {
		if len(frac) > 6 {
			return 0, syntaxErrorf(pos, "invalid timestamp %q", s)
		}
		n, err := strconv.ParseUint(frac, 10, 64)
		if err != nil {
			return 0, syntaxErrorf(pos, "invalid timestamp %q", s)
		}
		for i := len(frac); i < 6; i++ {
			n *= 10
		}
		usec = n
	}

	return uint64(t.Unix())*1_000_000 + usec, nil
}

// buildLeaf validates (id, op, value) against the rules the original's two
// create_expression overloads enforce and returns the compiled leaf.
func buildLeaf(id identifier, relTok, valTok token) (*leafExpr, error) {
	op, _ := operatorFromToken(relTok.kind)
	leaf := &leafExpr{id: id, op: op}

	if valTok.kind == tokNumber {
		n := valTok.number

		switch id {
		case identSourcePort, identDestinationPort, identPort:
			if n < 1 || n > 65535 {
				return nil, syntaxErrorf(valTok.pos, "invalid port %d", n)
			}
		case identICMPType, identICMPCode:
			if n > 255 {
				return nil, syntaxErrorf(valTok.pos, "invalid ICMP field %d", n)
			}
		case identQueryType:
			if n > 65535 {
				return nil, syntaxErrorf(valTok.pos, "invalid query type %d", n)
			}
		case identTransferred, identNumberDNSResponses, identPayload,
			identTransferredClient, identTransferredServer:
		case identDuration:
			// User input is seconds; stored and compared in microseconds.
			n *= 1_000_000
		default:
			return nil, syntaxErrorf(valTok.pos, "expected string constant for identifier %q", id)
		}

		leaf.num = n
		return leaf, nil
	}

	s := valTok.text

	switch relTok.kind {
	case tokEq, tokNe:
		switch id {
		case identDate, identCreation:
			ts, err := parseTimestamp(s, valTok.pos)
			if err != nil {
				return nil, err
			}
			leaf.num = ts
		case identEventType:
			k, ok := parseEventType(s)
			if !ok {
				return nil, syntaxErrorf(valTok.pos, "unknown event type %q", s)
			}
			leaf.num = uint64(k)
		case identSourceIP, identDestinationIP, identIP:
			m, err := netaddr.ParseMask(s)
			if err != nil {
				return nil, syntaxErrorf(valTok.pos, "invalid network mask %q", s)
			}
			leaf.mask = m
			leaf.hasMask = true
		case identSourceHostname, identDestinationHostname, identHostname,
			identDomain, identDNSResponse:
			if len(s) > maxStringLen {
				return nil, syntaxErrorf(valTok.pos, "constant %q is too long", s)
			}
			leaf.str = s
		default:
			return nil, syntaxErrorf(valTok.pos, "expected numeric constant for identifier %q", id)
		}

	case tokLt, tokGt, tokLe, tokGe:
		switch id {
		case identDate, identCreation:
			ts, err := parseTimestamp(s, valTok.pos)
			if err != nil {
				return nil, err
			}
			leaf.num = ts
		default:
			return nil, syntaxErrorf(valTok.pos, "invalid relational operator for identifier %q", id)
		}
	}

	return leaf, nil
}
