package event

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/guidoreina/netmon/netaddr"
)

// ErrMalformed is wrapped with context for any record that fails to decode.
var ErrMalformed = errors.New("event: malformed record")

// ErrTooLong is returned when an encoded record would exceed MaxLen.
var ErrTooLong = errors.New("event: record exceeds maximum length")

// Encode serializes e into the wire form: len(u16) || payload. The returned
// slice's first two bytes are the big-endian length of everything after
// them, exactly as spec §4.4 describes (placeholder-then-patch in the
// original C++; here we size the buffer up front since Go has no
// in-place-growable buffer-with-backpatch idiom as cheap as append).
func Encode(e Event) ([]byte, error) {
	body := make([]byte, 0, 64)
	body = appendBase(body, e.base(), e.Kind())

	switch v := e.(type) {
	case *ICMP:
		body = append(body, v.Type, v.Code)
		body = appendU16(body, v.Transferred)
	case *UDP:
		body = appendU16(body, v.Sport)
		body = appendU16(body, v.Dport)
		body = appendU16(body, v.Transferred)
	case *DNS:
		body = appendU16(body, v.Sport)
		body = appendU16(body, v.Dport)
		body = appendU16(body, v.Transferred)
		body = append(body, v.QType)
		if len(v.Domain) > 255 {
			return nil, errors.Wrap(ErrTooLong, "domain")
		}
		body = append(body, byte(len(v.Domain)))
		body = append(body, v.Domain...)
		if len(v.Responses) > MaxDNSResponses {
			return nil, errors.Wrap(ErrTooLong, "nresponses")
		}
		body = append(body, byte(len(v.Responses)))
		for _, r := range v.Responses {
			body = append(body, byte(r.Addr.Len()))
			body = append(body, r.Addr.Bytes()...)
		}
	case *TCPBegin:
		body = appendU16(body, v.Sport)
		body = appendU16(body, v.Dport)
	case *TCPData:
		body = appendU16(body, v.Sport)
		body = appendU16(body, v.Dport)
		body = appendU64(body, v.Creation)
		body = appendU16(body, v.Payload)
	case *TCPEnd:
		body = appendU16(body, v.Sport)
		body = appendU16(body, v.Dport)
		body = appendU64(body, v.Creation)
		body = appendU64(body, v.TransferredClient)
		body = appendU64(body, v.TransferredServer)
	default:
		return nil, errors.Wrap(ErrMalformed, "unknown event type")
	}

	if len(body) > MaxLen {
		return nil, ErrTooLong
	}

	out := make([]byte, 2+len(body))
	binary.BigEndian.PutUint16(out, uint16(len(body)))
	copy(out[2:], body)

	return out, nil
}

func appendU16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendBase(b []byte, base Base, k Kind) []byte {
	b = appendU64(b, base.Timestamp)
	b = append(b, byte(k))
	b = append(b, byte(base.Saddr.Len()))
	b = append(b, base.Saddr.Bytes()...)
	b = append(b, base.Daddr.Bytes()...)
	return b
}

// Decode decodes one record body from buf (buf must be exactly the body,
// i.e. what follows the u16 length on the wire, without the prefix) and
// returns the decoded Event, or an error wrapping ErrMalformed.
func Decode(buf []byte) (Event, error) {
	if len(buf) < MinLen4 {
		return nil, errors.Wrap(ErrMalformed, "record shorter than minimum base length")
	}

	ts := binary.BigEndian.Uint64(buf[0:8])
	kind := Kind(buf[8])
	addrlen := int(buf[9])

	if addrlen != netaddr.Len4 && addrlen != netaddr.Len16 {
		return nil, errors.Wrap(ErrMalformed, "invalid addrlen")
	}

	minLen := MinLen4
	if addrlen == netaddr.Len16 {
		minLen = MinLen6
	}
	if len(buf) < minLen {
		return nil, errors.Wrap(ErrMalformed, "record shorter than addrlen-specific minimum")
	}

	off := 10
	saddr, err := netaddr.FromBytes(buf[off : off+addrlen])
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, "saddr")
	}
	off += addrlen

	daddr, err := netaddr.FromBytes(buf[off : off+addrlen])
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, "daddr")
	}
	off += addrlen

	base := Base{Timestamp: ts, Saddr: saddr, Daddr: daddr}
	rest := buf[off:]

	switch kind {
	case KindICMP:
		if len(rest) < 4 {
			return nil, errors.Wrap(ErrMalformed, "icmp body")
		}
		return &ICMP{
			Base:        base,
			Type:        rest[0],
			Code:        rest[1],
			Transferred: binary.BigEndian.Uint16(rest[2:4]),
		}, nil

	case KindUDP:
		if len(rest) < 6 {
			return nil, errors.Wrap(ErrMalformed, "udp body")
		}
		return &UDP{
			Base:        base,
			Sport:       binary.BigEndian.Uint16(rest[0:2]),
			Dport:       binary.BigEndian.Uint16(rest[2:4]),
			Transferred: binary.BigEndian.Uint16(rest[4:6]),
		}, nil

	case KindDNS:
		return decodeDNS(base, rest)

	case KindTCPBegin:
		if len(rest) < 4 {
			return nil, errors.Wrap(ErrMalformed, "tcp_begin body")
		}
		return &TCPBegin{
			Base:  base,
			Sport: binary.BigEndian.Uint16(rest[0:2]),
			Dport: binary.BigEndian.Uint16(rest[2:4]),
		}, nil

	case KindTCPData:
		if len(rest) < 14 {
			return nil, errors.Wrap(ErrMalformed, "tcp_data body")
		}
		return &TCPData{
			Base:     base,
			Sport:    binary.BigEndian.Uint16(rest[0:2]),
			Dport:    binary.BigEndian.Uint16(rest[2:4]),
			Creation: binary.BigEndian.Uint64(rest[4:12]),
			Payload:  binary.BigEndian.Uint16(rest[12:14]),
		}, nil

	case KindTCPEnd:
		if len(rest) < 28 {
			return nil, errors.Wrap(ErrMalformed, "tcp_end body")
		}
		return &TCPEnd{
			Base:              base,
			Sport:             binary.BigEndian.Uint16(rest[0:2]),
			Dport:             binary.BigEndian.Uint16(rest[2:4]),
			Creation:          binary.BigEndian.Uint64(rest[4:12]),
			TransferredClient: binary.BigEndian.Uint64(rest[12:20]),
			TransferredServer: binary.BigEndian.Uint64(rest[20:28]),
		}, nil

	default:
		return nil, errors.Wrapf(ErrMalformed, "unknown kind %d", kind)
	}
}

func decodeDNS(base Base, rest []byte) (Event, error) {
	if len(rest) < 7 {
		return nil, errors.Wrap(ErrMalformed, "dns header")
	}

	sport := binary.BigEndian.Uint16(rest[0:2])
	dport := binary.BigEndian.Uint16(rest[2:4])
	transferred := binary.BigEndian.Uint16(rest[4:6])
	qtype := rest[6]

	off := 7
	if off >= len(rest) {
		return nil, errors.Wrap(ErrMalformed, "dns domainlen missing")
	}
	domainlen := int(rest[off])
	off++

	if off+domainlen > len(rest) {
		return nil, errors.Wrap(ErrMalformed, "dns domain truncated")
	}
	domain := string(rest[off : off+domainlen])
	off += domainlen

	if off >= len(rest) {
		return nil, errors.Wrap(ErrMalformed, "dns nresponses missing")
	}
	nresponses := int(rest[off])
	off++

	if nresponses > MaxDNSResponses {
		return nil, errors.Wrap(ErrMalformed, "dns nresponses exceeds cap")
	}

	var responses []DNSResponse
	if nresponses > 0 {
		responses = make([]DNSResponse, 0, nresponses)
	}
	for i := 0; i < nresponses; i++ {
		if off >= len(rest) {
			return nil, errors.Wrap(ErrMalformed, "dns response addrlen missing")
		}
		addrlen := int(rest[off])
		off++

		if addrlen != netaddr.Len4 && addrlen != netaddr.Len16 {
			return nil, errors.Wrap(ErrMalformed, "dns response addrlen invalid")
		}
		if off+addrlen > len(rest) {
			return nil, errors.Wrap(ErrMalformed, "dns response address truncated")
		}

		addr, err := netaddr.FromBytes(rest[off : off+addrlen])
		if err != nil {
			return nil, errors.Wrap(ErrMalformed, "dns response address")
		}
		off += addrlen

		responses = append(responses, DNSResponse{Addr: addr})
	}

	return &DNS{
		Base:        base,
		Sport:       sport,
		Dport:       dport,
		Transferred: transferred,
		QType:       qtype,
		Domain:      domain,
		Responses:   responses,
	}, nil
}
