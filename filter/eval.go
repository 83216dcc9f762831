package filter

import "github.com/guidoreina/netmon/event"

// The six evalXxx methods below mirror equality_expression::evaluate and
// relational_expression::evaluate's per-type switches: an identifier that
// doesn't apply to the event variant at hand evaluates to false rather
// than erroring, since the grammar has no per-variant type checking.

func (e *leafExpr) evalICMP(ev *event.ICMP, srcHost, dstHost string) bool {
	switch e.id {
	case identDate:
		return e.cmpNumber(ev.Timestamp)
	case identEventType:
		return e.cmpEventType(event.KindICMP)
	case identSourceIP:
		return e.matchAddr(ev.Saddr)
	case identSourceHostname:
		return e.matchHostname(srcHost)
	case identDestinationIP:
		return e.matchAddr(ev.Daddr)
	case identDestinationHostname:
		return e.matchHostname(dstHost)
	case identIP:
		return e.matchEitherAddr(ev.Saddr, ev.Daddr)
	case identHostname:
		return e.matchHostnames(srcHost, dstHost)
	case identICMPType:
		return e.cmpNumber(uint64(ev.Type))
	case identICMPCode:
		return e.cmpNumber(uint64(ev.Code))
	case identTransferred:
		return e.cmpNumber(uint64(ev.Transferred))
	default:
		return false
	}
}

func (e *leafExpr) evalUDP(ev *event.UDP, srcHost, dstHost string) bool {
	switch e.id {
	case identDate:
		return e.cmpNumber(ev.Timestamp)
	case identEventType:
		return e.cmpEventType(event.KindUDP)
	case identSourceIP:
		return e.matchAddr(ev.Saddr)
	case identSourceHostname:
		return e.matchHostname(srcHost)
	case identSourcePort:
		return e.cmpNumber(uint64(ev.Sport))
	case identDestinationIP:
		return e.matchAddr(ev.Daddr)
	case identDestinationHostname:
		return e.matchHostname(dstHost)
	case identDestinationPort:
		return e.cmpNumber(uint64(ev.Dport))
	case identIP:
		return e.matchEitherAddr(ev.Saddr, ev.Daddr)
	case identHostname:
		return e.matchHostnames(srcHost, dstHost)
	case identPort:
		return e.matchPortEither(ev.Sport, ev.Dport)
	case identTransferred:
		return e.cmpNumber(uint64(ev.Transferred))
	default:
		return false
	}
}

func (e *leafExpr) evalDNS(ev *event.DNS, srcHost, dstHost string) bool {
	switch e.id {
	case identDate:
		return e.cmpNumber(ev.Timestamp)
	case identEventType:
		return e.cmpEventType(event.KindDNS)
	case identSourceIP:
		return e.matchAddr(ev.Saddr)
	case identSourceHostname:
		return e.matchHostname(srcHost)
	case identSourcePort:
		return e.cmpNumber(uint64(ev.Sport))
	case identDestinationIP:
		return e.matchAddr(ev.Daddr)
	case identDestinationHostname:
		return e.matchHostname(dstHost)
	case identDestinationPort:
		return e.cmpNumber(uint64(ev.Dport))
	case identIP:
		return e.matchEitherAddr(ev.Saddr, ev.Daddr)
	case identHostname:
		return e.matchHostnames(srcHost, dstHost)
	case identPort:
		return e.matchPortEither(ev.Sport, ev.Dport)
	case identTransferred:
		return e.cmpNumber(uint64(ev.Transferred))
	case identQueryType:
		return e.cmpNumber(uint64(ev.QType))
	case identDomain:
		return e.matchDomain(ev.Domain)
	case identNumberDNSResponses:
		return e.cmpNumber(uint64(len(ev.Responses)))
	case identDNSResponse:
		return e.matchDNSResponse(ev.Responses)
	default:
		return false
	}
}

func (e *leafExpr) evalTCPBegin(ev *event.TCPBegin, srcHost, dstHost string) bool {
	switch e.id {
	case identDate:
		return e.cmpNumber(ev.Timestamp)
	case identEventType:
		return e.cmpEventType(event.KindTCPBegin)
	case identSourceIP:
		return e.matchAddr(ev.Saddr)
	case identSourceHostname:
		return e.matchHostname(srcHost)
	case identSourcePort:
		return e.cmpNumber(uint64(ev.Sport))
	case identDestinationIP:
		return e.matchAddr(ev.Daddr)
	case identDestinationHostname:
		return e.matchHostname(dstHost)
	case identDestinationPort:
		return e.cmpNumber(uint64(ev.Dport))
	case identIP:
		return e.matchEitherAddr(ev.Saddr, ev.Daddr)
	case identHostname:
		return e.matchHostnames(srcHost, dstHost)
	case identPort:
		return e.matchPortEither(ev.Sport, ev.Dport)
	default:
		return false
	}
}

func (e *leafExpr) evalTCPData(ev *event.TCPData, srcHost, dstHost string) bool {
	switch e.id {
	case identDate:
		return e.cmpNumber(ev.Timestamp)
	case identEventType:
		return e.cmpEventType(event.KindTCPData)
	case identSourceIP:
		return e.matchAddr(ev.Saddr)
	case identSourceHostname:
		return e.matchHostname(srcHost)
	case identSourcePort:
		return e.cmpNumber(uint64(ev.Sport))
	case identDestinationIP:
		return e.matchAddr(ev.Daddr)
	case identDestinationHostname:
		return e.matchHostname(dstHost)
	case identDestinationPort:
		return e.cmpNumber(uint64(ev.Dport))
	case identIP:
		return e.matchEitherAddr(ev.Saddr, ev.Daddr)
	case identHostname:
		return e.matchHostnames(srcHost, dstHost)
	case identPort:
		return e.matchPortEither(ev.Sport, ev.Dport)
	case identPayload:
		return e.cmpNumber(uint64(ev.Payload))
	default:
		return false
	}
}

func (e *leafExpr) evalTCPEnd(ev *event.TCPEnd, srcHost, dstHost string) bool {
	switch e.id {
	case identDate:
		return e.cmpNumber(ev.Timestamp)
	case identEventType:
		return e.cmpEventType(event.KindTCPEnd)
	case identSourceIP:
		return e.matchAddr(ev.Saddr)
	case identSourceHostname:
		return e.matchHostname(srcHost)
	case identSourcePort:
		return e.cmpNumber(uint64(ev.Sport))
	case identDestinationIP:
		return e.matchAddr(ev.Daddr)
	case identDestinationHostname:
		return e.matchHostname(dstHost)
	case identDestinationPort:
		return e.cmpNumber(uint64(ev.Dport))
	case identIP:
		return e.matchEitherAddr(ev.Saddr, ev.Daddr)
	case identHostname:
		return e.matchHostnames(srcHost, dstHost)
	case identPort:
		return e.matchPortEither(ev.Sport, ev.Dport)
	case identCreation:
		return e.cmpNumber(ev.Creation)
	case identDuration:
		return e.cmpNumber(ev.Timestamp - ev.Creation)
	case identTransferredClient:
		return e.cmpNumber(ev.TransferredClient)
	case identTransferredServer:
		return e.cmpNumber(ev.TransferredServer)
	default:
		return false
	}
}
