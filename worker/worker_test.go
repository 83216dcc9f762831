package worker

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/guidoreina/netmon/eventfile"
	"github.com/guidoreina/netmon/tcp"
)

func newTestWorker(t *testing.T) *Worker {
	t.Helper()

	cfg := Config{
		ID:               0,
		Processor:        NoProcessor,
		Device:           "eth0",
		EventsDir:        t.TempDir(),
		WriterBufferSize: eventfile.MinBufferSize,
		TCPv4Size:        tcp.MinSize,
		TCPv4MaxConns:    tcp.MinConnections,
		TCPv6Size:        tcp.MinSize,
		TCPv6MaxConns:    tcp.MinConnections,
		TCPTimeout:       tcp.MinTimeout,
		TCPTimeWait:      tcp.MinTimeWait,
	}
	require.NoError(t, cfg.Validate())

	w, err := New(cfg, nil)
	require.NoError(t, err)
	return w
}

func ipv4Packet(t *testing.T, proto byte, payload []byte) []byte {
	t.Helper()

	buf := make([]byte, 20+len(payload))
	buf[0] = 0x45
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(buf)))
	buf[9] = proto
	copy(buf[12:16], []byte{10, 0, 0, 1})
	copy(buf[16:20], []byte{10, 0, 0, 2})
	copy(buf[20:], payload)
	return buf
}

func ipv6Packet(t *testing.T, proto byte, payload []byte) []byte {
	t.Helper()

	buf := make([]byte, 40+len(payload))
	buf[0] = 0x60
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(payload)))
	buf[6] = proto
	for i := 0; i < 16; i++ {
		buf[8+i] = 0xfe
		buf[24+i] = 0xff
	}
	copy(buf[40:], payload)
	return buf
}

func TestWorkerICMPEmitsEvent(t *testing.T) {
	w := newTestWorker(t)

	payload := []byte{8, 0, 0, 0}
	pkt := ipv4Packet(t, 1, payload)

	require.True(t, w.icmp(pkt, 20, len(pkt), time.Now()))
	require.NoError(t, w.writer.Flush())
}

func TestWorkerICMPv6EmitsEvent(t *testing.T) {
	w := newTestWorker(t)

	payload := []byte{128, 0, 0, 0}
	pkt := ipv6Packet(t, 58, payload)

	require.True(t, w.icmpv6(pkt, 40, len(pkt), time.Now()))
}

func tcpSegment(t *testing.T, sport, dport uint16, flags byte) []byte {
	t.Helper()

	seg := make([]byte, 20)
	binary.BigEndian.PutUint16(seg[0:2], sport)
	binary.BigEndian.PutUint16(seg[2:4], dport)
	seg[12] = 5 << 4
	seg[13] = flags
	return seg
}

func TestWorkerTCPv4SynOpensConnection(t *testing.T) {
	w := newTestWorker(t)

	seg := tcpSegment(t, 1234, 80, 0x02) // SYN
	pkt := ipv4Packet(t, 6, seg)

	require.True(t, w.tcpv4(pkt, 20, len(pkt), time.Now()))
}

func TestWorkerTCPv6SynOpensConnection(t *testing.T) {
	w := newTestWorker(t)

	seg := tcpSegment(t, 1234, 80, 0x02)
	pkt := ipv6Packet(t, 6, seg)

	require.True(t, w.tcpv6(pkt, 40, len(pkt), time.Now()))
}

func TestWorkerUDPv4NonDNSEmitsUDPEvent(t *testing.T) {
	w := newTestWorker(t)

	udp := make([]byte, 8+4)
	binary.BigEndian.PutUint16(udp[0:2], 5000)
	binary.BigEndian.PutUint16(udp[2:4], 6000)
	binary.BigEndian.PutUint16(udp[4:6], uint16(len(udp)))
	pkt := ipv4Packet(t, 17, udp)

	require.True(t, w.udpv4(pkt, 20, len(pkt), time.Now()))
}

func TestWorkerIdleFlushesAndSweeps(t *testing.T) {
	w := newTestWorker(t)

	seg := tcpSegment(t, 1234, 80, 0x02)
	pkt := ipv4Packet(t, 6, seg)
	require.True(t, w.tcpv4(pkt, 20, len(pkt), time.Now()))

	w.lastSweep = time.Now().Add(-2 * sweepInterval)
	w.idle(false)
	require.NoError(t, w.Err())
}

func TestWorkerShowStatisticsWritesTables(t *testing.T) {
	w := newTestWorker(t)

	var buf bytes.Buffer
	w.ShowStatistics(&buf)

	require.Contains(t, buf.String(), "connections")
}

func TestConfigValidateRejectsBadTableSize(t *testing.T) {
	cfg := Config{
		EventsDir:     t.TempDir(),
		TCPv4Size:     100, // not a power of two
		TCPv4MaxConns: tcp.MinConnections,
		TCPv6Size:     tcp.MinSize,
		TCPv6MaxConns: tcp.MinConnections,
		TCPTimeout:    tcp.MinTimeout,
		TCPTimeWait:   tcp.MinTimeWait,
	}
	require.Error(t, cfg.Validate())
}

func TestNewUsesDeviceAndIDForFilename(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		ID:            3,
		Processor:     NoProcessor,
		Device:        "eth1",
		EventsDir:     dir,
		TCPv4Size:     tcp.MinSize,
		TCPv4MaxConns: tcp.MinConnections,
		TCPv6Size:     tcp.MinSize,
		TCPv6MaxConns: tcp.MinConnections,
		TCPTimeout:    tcp.MinTimeout,
		TCPTimeWait:   tcp.MinTimeWait,
	}
	require.NoError(t, cfg.Validate())

	w, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, w.writer.Close())

	_, err = os.Stat(filepath.Join(dir, "events-eth1.3.bin"))
	require.NoError(t, err)
}
