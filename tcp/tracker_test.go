package tcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/guidoreina/netmon/event"
	"github.com/guidoreina/netmon/netaddr"
)

type fakeSink struct {
	events []event.Event
}

func (s *fakeSink) Write(e event.Event) error {
	s.events = append(s.events, e)
	return nil
}

func addr(t *testing.T, b ...byte) netaddr.Addr {
	t.Helper()
	a, err := netaddr.FromBytes(b)
	require.NoError(t, err)
	return a
}

func newTracker(t *testing.T, sink Sink) *Tracker {
	t.Helper()
	tr, err := New(MinSize, DefaultMaxConnections, MinTimeout, MinTimeWait, sink)
	require.NoError(t, err)
	return tr
}

func TestAddRejectsBadConfig(t *testing.T) {
	sink := &fakeSink{}
	_, err := New(100, DefaultMaxConnections, MinTimeout, MinTimeWait, sink)
	require.Error(t, err)

	_, err = New(MinSize, DefaultMaxConnections, 1*time.Second, MinTimeWait, sink)
	require.Error(t, err)
}

func TestSynOpensConnectionAndEmitsBegin(t *testing.T) {
	sink := &fakeSink{}
	tr := newTracker(t, sink)

	client := addr(t, 10, 0, 0, 1)
	server := addr(t, 10, 0, 0, 2)

	ok, err := tr.Add(client, server, 40000, 80, FlagSYN, 60, 0, 1_000_000)
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, sink.events, 1)
	begin, isBegin := sink.events[0].(*event.TCPBegin)
	require.True(t, isBegin)
	require.Equal(t, client.Bytes(), begin.Saddr.Bytes())
	require.Equal(t, server.Bytes(), begin.Daddr.Bytes())
	require.Equal(t, uint16(40000), begin.Sport)
	require.Equal(t, uint16(80), begin.Dport)
}

func TestFullLifecycleEmitsDataAndEnd(t *testing.T) {
	sink := &fakeSink{}
	tr := newTracker(t, sink)

	client := addr(t, 192, 168, 0, 10)
	server := addr(t, 192, 168, 0, 20)
	cport, sport := uint16(51000), uint16(443)

	now := uint64(1_000_000)
	mustOK := func(flags uint8, src netaddr.Addr, srcPort uint16, dst netaddr.Addr, dstPort uint16, pktsize, payload uint16) {
		ok, err := tr.Add(src, dst, srcPort, dstPort, flags, pktsize, payload, now)
		require.NoError(t, err)
		require.True(t, ok)
		now += 1000
	}

	mustOK(FlagSYN, client, cport, server, sport, 60, 0)
	mustOK(FlagSYN|FlagACK, server, sport, client, cport, 60, 0)
	mustOK(FlagACK, client, cport, server, sport, 52, 0)
	mustOK(FlagACK, client, cport, server, sport, 1500, 1448)
	mustOK(FlagACK, server, sport, client, cport, 52, 0)
	mustOK(FlagFIN|FlagACK, client, cport, server, sport, 52, 0)
	mustOK(FlagFIN|FlagACK, server, sport, client, cport, 52, 0)
	mustOK(FlagACK, client, cport, server, sport, 52, 0)

	var sawBegin, sawData bool
	for _, e := range sink.events {
		switch e.(type) {
		case *event.TCPBegin:
			sawBegin = true
		case *event.TCPData:
			sawData = true
		}
	}
	require.True(t, sawBegin)
	require.True(t, sawData)

	require.Equal(t, StateClosed, tr.lookup(client, server, cport, sport).state)
}

// lookup is a test-only helper that walks the bucket to find the
// connection for assertions; production code never needs random access by
// key outside of Add/RemoveExpired.
func (t *Tracker) lookup(addr1, addr2 netaddr.Addr, port1, port2 uint16) *connection {
	var a1, a2 netaddr.Addr
	var p1, p2 uint16
	if port1 < port2 {
		a1, p1, a2, p2 = addr1, port1, addr2, port2
	} else if port1 > port2 {
		a1, p1, a2, p2 = addr2, port2, addr1, port1
	} else if netaddr.Compare(addr1, addr2) <= 0 {
		a1, p1, a2, p2 = addr1, port1, addr2, port2
	} else {
		a1, p1, a2, p2 = addr2, port2, addr1, port1
	}

	bucket := bucketIndex(a1, a2, p1, p2) & t.mask
	header := &t.buckets[bucket]
	for c := header.next; c != header; c = c.next {
		if c.matches(a1, a2, p1, p2) {
			return c
		}
	}
	return nil
}

func TestRemoveExpiredEmitsEndForIdleConnection(t *testing.T) {
	sink := &fakeSink{}
	tr := newTracker(t, sink)

	client := addr(t, 10, 0, 0, 1)
	server := addr(t, 10, 0, 0, 2)

	_, err := tr.Add(client, server, 40000, 80, FlagSYN, 60, 0, 0)
	require.NoError(t, err)

	timeoutMicros := uint64(MinTimeout / time.Microsecond)
	require.NoError(t, tr.RemoveExpired(timeoutMicros+1))

	var sawEnd bool
	for _, e := range sink.events {
		if _, ok := e.(*event.TCPEnd); ok {
			sawEnd = true
		}
	}
	require.True(t, sawEnd)
	require.Equal(t, uint64(0), tr.nconnections)
}

func TestCapacityDropsSynSilently(t *testing.T) {
	sink := &fakeSink{}
	tr, err := New(MinSize, MinConnections, MinTimeout, MinTimeWait, sink)
	require.NoError(t, err)

	var lastOK bool
	for i := 0; i < MinConnections+1; i++ {
		client := addr(t, byte(i>>24), byte(i>>16), byte(i>>8), byte(i))
		server := addr(t, 10, 0, 0, 255)
		ok, err := tr.Add(client, server, uint16(1024+i%1000), 80, FlagSYN, 60, 0, 0)
		require.NoError(t, err)
		lastOK = ok
	}

	require.False(t, lastOK)
}
