package dnsmsg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func encodeName(labels ...string) []byte {
	var buf []byte
	for _, l := range labels {
		buf = append(buf, byte(len(l)))
		buf = append(buf, []byte(l)...)
	}
	buf = append(buf, 0)
	return buf
}

func buildQuery(t *testing.T, qtype uint16) []byte {
	t.Helper()

	header := []byte{
		0x12, 0x34, // ID
		0x00,       // QR=0, opcode=0, AA=0, TC=0, RD=0
		0x00,       // RA=0, Z=0, RCODE=0
		0x00, 0x01, // QDCOUNT=1
		0x00, 0x00, // ANCOUNT=0
		0x00, 0x00, // NSCOUNT=0
		0x00, 0x00, // ARCOUNT=0
	}

	name := encodeName("example", "com")

	q := append(name, byte(qtype>>8), byte(qtype), 0x00, 0x01) // QTYPE, QCLASS=IN

	return append(header, q...)
}

func TestParseQuery(t *testing.T) {
	buf := buildQuery(t, 1)

	m, ok := Parse(buf)
	require.True(t, ok)
	require.True(t, m.IsQuery)
	require.Equal(t, "example.com", m.Domain)
	require.Equal(t, uint8(1), m.QType)
	require.Empty(t, m.Responses)
}

func buildResponseWithA(t *testing.T) []byte {
	t.Helper()

	header := []byte{
		0x12, 0x34,
		0x80, // QR=1
		0x00,
		0x00, 0x01, // QDCOUNT=1
		0x00, 0x01, // ANCOUNT=1
		0x00, 0x00,
		0x00, 0x00,
	}

	name := encodeName("example", "com")
	question := append(name, 0x00, 0x01, 0x00, 0x01) // QTYPE=A, QCLASS=IN

	// Answer: NAME is a pointer to offset 12 (start of the question name).
	answer := []byte{
		0xc0, 0x0c, // pointer to offset 12
		0x00, 0x01, // TYPE=A
		0x00, 0x01, // CLASS=IN
		0x00, 0x00, 0x00, 0x3c, // TTL
		0x00, 0x04, // RDLENGTH=4
		93, 184, 216, 34, // RDATA
	}

	buf := append(header, question...)
	buf = append(buf, answer...)
	return buf
}

func TestParseResponseWithA(t *testing.T) {
	buf := buildResponseWithA(t)

	m, ok := Parse(buf)
	require.True(t, ok)
	require.False(t, m.IsQuery)
	require.Equal(t, "example.com", m.Domain)
	require.Len(t, m.Responses, 1)
	require.Equal(t, []byte{93, 184, 216, 34}, m.Responses[0].Addr.Bytes())
}

func TestParseRejectsTruncated(t *testing.T) {
	buf := buildQuery(t, 1)
	buf[2] |= 0x02 // TC bit

	_, ok := Parse(buf)
	require.False(t, ok)
}

func TestParseRejectsNonZeroRcode(t *testing.T) {
	buf := buildQuery(t, 1)
	buf[3] = 0x01

	_, ok := Parse(buf)
	require.False(t, ok)
}

func TestParseRejectsTooShort(t *testing.T) {
	_, ok := Parse(make([]byte, 4))
	require.False(t, ok)
}

func TestParseRejectsTooLong(t *testing.T) {
	_, ok := Parse(make([]byte, MaxLen+1))
	require.False(t, ok)
}

func TestParseResponseWithNoAnswersIsMalformed(t *testing.T) {
	buf := buildQuery(t, 1)
	buf[2] = 0x80 // QR=1, but ANCOUNT stays 0

	_, ok := Parse(buf)
	require.False(t, ok)
}

func TestParseRejectsMismatchedRdlength(t *testing.T) {
	buf := buildResponseWithA(t)
	// Corrupt RDLENGTH to claim 16 bytes for a 4-byte A record.
	rdlenOff := len(buf) - 4 - 2
	buf[rdlenOff] = 0x00
	buf[rdlenOff+1] = 0x10

	_, ok := Parse(buf)
	require.False(t, ok)
}
