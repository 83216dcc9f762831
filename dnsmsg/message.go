// Package dnsmsg parses a single DNS message (the UDP payload of a DNS
// request or response) into the fields the dns event variant needs,
// per spec §4.2. No third-party DNS library is wired here: the pack
// carries none, and a full resolver library (with its own transport,
// caching, and RR-type zoo) would be an odd fit for parsing one
// bounds-checked message out of a live capture.
package dnsmsg

import (
	"strings"

	"github.com/guidoreina/netmon/netaddr"
)

// Port is the well-known DNS port.
const Port = 53

const (
	// MaxLen and MinLen bound a legal DNS message (spec §4.2).
	MaxLen = 512
	MinLen = 12

	headerLen      = 12
	maxPointers    = 64
	maxDomainLen   = 255
	// MaxResponses caps the A/AAAA answers collected from a response.
	MaxResponses = 24
)

// Response is one collected A/AAAA answer.
type Response struct {
	Addr netaddr.Addr
}

// Message is the result of successfully parsing a DNS message.
type Message struct {
	Domain    string
	QType     uint8
	IsQuery   bool
	Responses []Response
}

// Parse validates and decodes buf as a DNS message. It returns false for
// anything that doesn't meet spec §4.2's acceptance criteria: malformed
// header flags, a QNAME that doesn't terminate cleanly, or (for a
// response) zero collected A/AAAA answers.
func Parse(buf []byte) (Message, bool) {
	var m Message

	if len(buf) < MinLen || len(buf) > MaxLen {
		return m, false
	}

	opcode := (buf[2] >> 3) & 0x0f
	truncated := buf[2]&0x02 != 0
	rcode := buf[3] & 0x0f

	if opcode > 2 || truncated || rcode != 0 {
		return m, false
	}

	qdcount := int(buf[4])<<8 | int(buf[5])
	if qdcount == 0 {
		return m, false
	}

	p := &parser{buf: buf}
	p.off = headerLen

	domain, ok := p.parseDomainName()
	if !ok || p.off+4 > len(buf) {
		return m, false
	}

	qclass := int(buf[p.off+2])<<8 | int(buf[p.off+3])
	if qclass != 1 {
		return m, false
	}

	qtype := int(buf[p.off])<<8 | int(buf[p.off+1])
	if qtype > 255 {
		return m, false
	}

	m.Domain = domain
	m.QType = uint8(qtype)

	qr := buf[2]&0x80 != 0
	if !qr {
		m.IsQuery = true
		return m, true
	}

	ancount := int(buf[6])<<8 | int(buf[7])
	if ancount == 0 {
		return m, false
	}

	p.off += 4 // skip QTYPE, QCLASS

	for i := 1; i < qdcount; i++ {
		if !p.skipQuestion() {
			return m, false
		}
	}

	responses := make([]Response, 0, MaxResponses)

	for i := 0; i < ancount; i++ {
		if !p.skipDomainName() || p.off+10 > len(buf) {
			return m, false
		}

		class := int(buf[p.off+2])<<8 | int(buf[p.off+3])
		rdlength := int(buf[p.off+8])<<8 | int(buf[p.off+9])

		next := p.off + 10 + rdlength
		if next > len(buf) {
			return m, false
		}

		if class == 1 {
			rtype := int(buf[p.off])<<8 | int(buf[p.off+1])
			switch rtype {
			case 1: // A
				if rdlength != 4 {
					return m, false
				}
				addr, err := netaddr.FromBytes(buf[p.off+10 : p.off+14])
				if err != nil {
					return m, false
				}
				responses = append(responses, Response{Addr: addr})
			case 28: // AAAA
				if rdlength != 16 {
					return m, false
				}
				addr, err := netaddr.FromBytes(buf[p.off+10 : p.off+26])
				if err != nil {
					return m, false
				}
				responses = append(responses, Response{Addr: addr})
			}

			if len(responses) == MaxResponses {
				m.Responses = responses
				return m, true
			}
		}

		p.off = next
	}

	if len(responses) == 0 {
		return m, false
	}

	m.Responses = responses
	return m, true
}

type parser struct {
	buf []byte
	off int
}

func (p *parser) skipQuestion() bool {
	if !p.skipDomainName() || p.off+4 > len(p.buf) {
		return false
	}
	p.off += 4
	return true
}

// parseDomainName decodes the QNAME at p.off, following compression
// pointers, and advances p.off past the (uncompressed) name in the
// original message stream.
func (p *parser) parseDomainName() (string, bool) {
	var sb strings.Builder
	npointers := 0
	off := p.off

	for off < len(p.buf) {
		lead := p.buf[off]

		switch {
		case lead&0xc0 == 0:
			if lead == 0 {
				if npointers == 0 {
					p.off = off + 1
				}
				return sb.String(), true
			}

			next := off + 1 + int(lead)
			if next >= len(p.buf) || sb.Len()+1+int(lead) > maxDomainLen {
				return "", false
			}

			if sb.Len() > 0 {
				sb.WriteByte('.')
			}
			sb.Write(p.buf[off+1 : off+1+int(lead)])

			off = next

		case lead&0xc0 == 0xc0:
			if off+1 >= len(p.buf) {
				return "", false
			}
			npointers++
			if npointers > maxPointers {
				return "", false
			}

			ptrOff := int(lead&0x3f)<<8 | int(p.buf[off+1])
			if ptrOff < headerLen || ptrOff >= len(p.buf) {
				return "", false
			}

			if npointers == 1 {
				p.off = off + 2
			}
			off = ptrOff

		default:
			return "", false
		}
	}

	return "", false
}

// skipDomainName behaves like parseDomainName but discards the decoded
// text, used for the questions/names this parser doesn't need verbatim.
func (p *parser) skipDomainName() bool {
	_, ok := p.parseDomainName()
	return ok
}
