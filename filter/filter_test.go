package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guidoreina/netmon/event"
	"github.com/guidoreina/netmon/netaddr"
)

func addr(t *testing.T, b ...byte) netaddr.Addr {
	t.Helper()
	a, err := netaddr.FromBytes(b)
	require.NoError(t, err)
	return a
}

func TestParseEqualityPort(t *testing.T) {
	expr, err := Parse(`destination_port == 80`)
	require.NoError(t, err)

	ev := &event.UDP{Dport: 80}
	require.True(t, expr.Evaluate(ev, "", ""))

	ev.Dport = 81
	require.False(t, expr.Evaluate(ev, "", ""))
}

func TestParseRelationalTransferred(t *testing.T) {
	expr, err := Parse(`transferred > 1000`)
	require.NoError(t, err)

	ev := &event.ICMP{Transferred: 2000}
	require.True(t, expr.Evaluate(ev, "", ""))

	ev.Transferred = 500
	require.False(t, expr.Evaluate(ev, "", ""))
}

func TestParseAndOr(t *testing.T) {
	expr, err := Parse(`event_type == "tcp_end" && transferred_client > 100`)
	require.NoError(t, err)

	ev := &event.TCPEnd{TransferredClient: 200}
	require.True(t, expr.Evaluate(ev, "", ""))

	ev.TransferredClient = 1
	require.False(t, expr.Evaluate(ev, "", ""))

	other, err := Parse(`source_port == 1 || destination_port == 2`)
	require.NoError(t, err)

	u := &event.UDP{Sport: 9, Dport: 2}
	require.True(t, other.Evaluate(u, "", ""))
}

func TestParseMixedLogicalOperatorsRejected(t *testing.T) {
	_, err := Parse(`source_port == 1 && destination_port == 2 || port == 3`)
	require.Error(t, err)
}

func TestParseMixedLogicalOperatorsAcceptedWithParens(t *testing.T) {
	_, err := Parse(`(source_port == 1 && destination_port == 2) || port == 3`)
	require.NoError(t, err)
}

func TestParseDepthLimit(t *testing.T) {
	s := ""
	for i := 0; i < MaxDepth+1; i++ {
		s += "("
	}
	s += `port == 1`
	for i := 0; i < MaxDepth+1; i++ {
		s += ")"
	}

	_, err := Parse(s)
	require.Error(t, err)
}

func TestParseIPMask(t *testing.T) {
	expr, err := Parse(`source_ip == "10.0.0.0/8"`)
	require.NoError(t, err)

	ev := &event.ICMP{}
	ev.Saddr = addr(t, 10, 1, 2, 3)
	require.True(t, expr.Evaluate(ev, "", ""))

	ev.Saddr = addr(t, 11, 1, 2, 3)
	require.False(t, expr.Evaluate(ev, "", ""))
}

func TestParseHostnameSubstring(t *testing.T) {
	expr, err := Parse(`hostname == "example"`)
	require.NoError(t, err)

	ev := &event.ICMP{}
	require.True(t, expr.Evaluate(ev, "www.EXAMPLE.com", ""))
	require.False(t, expr.Evaluate(ev, "other.org", "other2.org"))
}

func TestParseDomainExactMatch(t *testing.T) {
	expr, err := Parse(`domain == "example.com"`)
	require.NoError(t, err)

	ev := &event.DNS{Domain: "example.com"}
	require.True(t, expr.Evaluate(ev, "", ""))

	ev.Domain = "www.example.com"
	require.False(t, expr.Evaluate(ev, "", ""))
}

func TestParseDuration(t *testing.T) {
	expr, err := Parse(`duration >= 5`)
	require.NoError(t, err)

	ev := &event.TCPEnd{}
	ev.Timestamp = 6_000_000
	ev.Creation = 0
	require.True(t, expr.Evaluate(ev, "", ""))

	ev.Timestamp = 1_000_000
	require.False(t, expr.Evaluate(ev, "", ""))
}

func TestParseInvalidPortRange(t *testing.T) {
	_, err := Parse(`port == 70000`)
	require.Error(t, err)
}

func TestParseUnknownIdentifier(t *testing.T) {
	_, err := Parse(`bogus == 1`)
	require.Error(t, err)
}

func TestParseRelationalOnHostnameRejected(t *testing.T) {
	_, err := Parse(`hostname > "a"`)
	require.Error(t, err)
}

func TestParseTimestampEquality(t *testing.T) {
	expr, err := Parse(`date == "2020/01/01 00:00:00"`)
	require.NoError(t, err)

	ev := &event.ICMP{}
	ev.Timestamp = 0
	require.False(t, expr.Evaluate(ev, "", ""))
}
