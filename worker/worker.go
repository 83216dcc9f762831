// Package worker drives one capture source through the parser and into a
// pair of per-family TCP trackers plus an event writer, per spec §2/§5
// (component G). Each worker is fully self-contained: no mutable state is
// shared with its siblings, and kernel-side flow fan-out (when the capture
// source supports it) is what keeps a given flow pinned to one worker.
package worker

import (
	"encoding/binary"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/guidoreina/netmon/capture"
	"github.com/guidoreina/netmon/dnsmsg"
	"github.com/guidoreina/netmon/event"
	"github.com/guidoreina/netmon/eventfile"
	"github.com/guidoreina/netmon/netaddr"
	"github.com/guidoreina/netmon/parser"
	"github.com/guidoreina/netmon/stats"
	"github.com/guidoreina/netmon/tcp"
)

// log is the package-wide logger, silent until a caller opts in with
// SetLogger.
var log = zap.NewNop()

// SetLogger installs l as the worker package's logger.
func SetLogger(l *zap.Logger) {
	log = l
}

// idlePollInterval is how often the run loop checks in when no frame is
// available, standing in for the original's poll-timeout-driven idle
// callback (net/mon/worker.h::idle).
const idlePollInterval = 100 * time.Millisecond

// sweepInterval is how often a worker scans its trackers for expired
// connections, matching worker::check_interval.
const sweepInterval = 10 * time.Second

// icmpHeaderLen, icmpv6HeaderLen, tcpHeaderLen and udpHeaderLen are the
// minimum L4 header sizes the handlers below check for before indexing into
// the header; shorter packets are counted in stats.PacketsIgnored.
const (
	icmpHeaderLen   = 4
	icmpv6HeaderLen = 4
	tcpHeaderLen    = 20
	udpHeaderLen    = 8
)

// Worker owns one capture source, a parser wired to its protocol handlers,
// one TCP tracker per IP family and one event writer. Start runs its
// capture/parse/emit loop on a dedicated goroutine; Stop tears it down
// cleanly, flushing the writer and patching the file header.
type Worker struct {
	cfg Config
	src capture.Source

	parser *parser.Parser
	tcp4   *tcp.Tracker
	tcp6   *tcp.Tracker
	writer *eventfile.Writer

	lastSweep time.Time

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	running  bool

	mu       sync.Mutex
	fatalErr error
}

// New builds a Worker around src. cfg must already have passed Validate.
func New(cfg Config, src capture.Source) (*Worker, error) {
	bufSize := cfg.WriterBufferSize
	if bufSize == 0 {
		bufSize = eventfile.DefaultBufferSize
	}

	writer := eventfile.NewWriter(bufSize)

	filename := fmt.Sprintf("%s/events-%s.%d.bin", cfg.EventsDir, cfg.Device, cfg.ID)
	if err := writer.Open(filename); err != nil {
		return nil, errors.Wrap(err, "worker: open event file")
	}

	tcp4, err := tcp.New(cfg.TCPv4Size, cfg.TCPv4MaxConns, cfg.TCPTimeout, cfg.TCPTimeWait, writer)
	if err != nil {
		writer.Close()
		return nil, errors.Wrap(err, "worker: build ipv4 tracker")
	}

	tcp6, err := tcp.New(cfg.TCPv6Size, cfg.TCPv6MaxConns, cfg.TCPTimeout, cfg.TCPTimeWait, writer)
	if err != nil {
		writer.Close()
		return nil, errors.Wrap(err, "worker: build ipv6 tracker")
	}

	w := &Worker{
		cfg:    cfg,
		src:    src,
		tcp4:   tcp4,
		tcp6:   tcp6,
		writer: writer,
	}

	w.parser = parser.New(parser.Hooks{
		ICMP:   w.icmp,
		ICMPv6: w.icmpv6,
		TCPv4:  w.tcpv4,
		TCPv6:  w.tcpv6,
		UDPv4:  w.udpv4,
		UDPv6:  w.udpv6,
	})

	return w, nil
}

// Start launches the capture/parse/emit loop on a new goroutine, optionally
// pinned to cfg.Processor.
func (w *Worker) Start() error {
	if w.running {
		return nil
	}

	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.stopOnce = sync.Once{}
	w.running = true
	w.lastSweep = time.Now()

	go w.run()
	return nil
}

// Stop signals the loop to exit, waits for it to drain, flushes the
// writer and patches the event file's header.
func (w *Worker) Stop() error {
	if !w.running {
		return nil
	}

	w.requestStop()
	<-w.doneCh
	w.running = false

	if err := w.src.Close(); err != nil {
		log.Warn("worker: closing capture source", zap.Error(err))
	}

	return w.writer.Close()
}

func (w *Worker) requestStop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *Worker) recordFatal(err error) {
	w.mu.Lock()
	if w.fatalErr == nil {
		w.fatalErr = err
	}
	w.mu.Unlock()
	w.requestStop()
}

// Err returns the error that caused the loop to stop itself, if any (a
// capture read failure or a writer allocation failure per spec §7's
// propagation policy). It is nil after a clean Stop.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fatalErr
}

type frameOrErr struct {
	data []byte
	ts   time.Time
	err  error
}

func (w *Worker) run() {
	defer close(w.doneCh)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if w.cfg.Processor != NoProcessor {
		if err := pinToProcessor(w.cfg.Processor); err != nil {
			log.Warn("worker: failed to pin to processor",
				zap.Int("processor", w.cfg.Processor), zap.Error(err))
		}
	}

	frames := make(chan frameOrErr, 64)
	go func() {
		defer close(frames)
		for {
			data, ts, err := w.src.ReadFrame()
			select {
			case frames <- frameOrErr{data, ts, err}:
			case <-w.stopCh:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			w.idle(true)
			return

		case fr, ok := <-frames:
			if !ok {
				w.idle(true)
				return
			}
			if fr.err != nil {
				if fr.err != io.EOF {
					log.Warn("worker: capture read failed", zap.Error(fr.err))
					w.recordFatal(errors.Wrap(fr.err, "worker: capture read"))
				}
				w.idle(true)
				return
			}

			stats.PacketsReceived.Inc()
			if !w.parser.ProcessEthernet(fr.data, fr.ts) {
				stats.PacketsMalformed.Inc()
			}

		case <-ticker.C:
			w.idle(false)
		}
	}
}

// idle flushes the writer and, once every sweepInterval (or unconditionally
// on final shutdown), sweeps both trackers for expired connections —
// translating worker::idle's flush-then-maybe-sweep behavior.
func (w *Worker) idle(final bool) {
	if err := w.writer.Flush(); err != nil {
		w.recordFatal(errors.Wrap(err, "worker: flush event writer"))
		return
	}

	now := time.Now()
	if !final && now.Sub(w.lastSweep) < sweepInterval {
		return
	}
	w.lastSweep = now

	ts := toMicroseconds(now)
	if err := w.tcp4.RemoveExpired(ts); err != nil {
		w.recordFatal(errors.Wrap(err, "worker: sweep ipv4 connections"))
		return
	}
	if err := w.tcp6.RemoveExpired(ts); err != nil {
		w.recordFatal(errors.Wrap(err, "worker: sweep ipv6 connections"))
	}
}

func toMicroseconds(t time.Time) uint64 {
	return uint64(t.UnixMicro())
}

func pinToProcessor(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}

func (w *Worker) write(ev event.Event) bool {
	if err := w.writer.Write(ev); err != nil {
		w.recordFatal(errors.Wrap(err, "worker: write event"))
		return false
	}
	return true
}

// icmp builds an icmp event from an IPv4 packet carrying an ICMP datagram.
func (w *Worker) icmp(ipPacket []byte, ipHeaderLen, pktLen int, ts time.Time) bool {
	if pktLen-ipHeaderLen < icmpHeaderLen {
		stats.PacketsIgnored.Inc()
		return true
	}

	icmpHdr := ipPacket[ipHeaderLen:]

	saddr, err := netaddr.FromBytes(ipPacket[12:16])
	if err != nil {
		return false
	}
	daddr, err := netaddr.FromBytes(ipPacket[16:20])
	if err != nil {
		return false
	}

	ev := &event.ICMP{
		Base: event.Base{
			Timestamp: toMicroseconds(ts),
			Saddr:     saddr,
			Daddr:     daddr,
		},
		Type:        icmpHdr[0],
		Code:        icmpHdr[1],
		Transferred: uint16(pktLen),
	}

	return w.write(ev)
}

// icmpv6 builds an icmp event from an IPv6 packet carrying an ICMPv6
// datagram. Addresses are always read from the fixed IPv6 header, not
// relative to ipHeaderLen, since extension headers never move them.
func (w *Worker) icmpv6(ipPacket []byte, ipHeaderLen, pktLen int, ts time.Time) bool {
	if pktLen-ipHeaderLen < icmpv6HeaderLen {
		stats.PacketsIgnored.Inc()
		return true
	}

	icmpHdr := ipPacket[ipHeaderLen:]

	saddr, err := netaddr.FromBytes(ipPacket[8:24])
	if err != nil {
		return false
	}
	daddr, err := netaddr.FromBytes(ipPacket[24:40])
	if err != nil {
		return false
	}

	ev := &event.ICMP{
		Base: event.Base{
			Timestamp: toMicroseconds(ts),
			Saddr:     saddr,
			Daddr:     daddr,
		},
		Type:        icmpHdr[0],
		Code:        icmpHdr[1],
		Transferred: uint16(pktLen),
	}

	return w.write(ev)
}

// tcpv4 feeds one observed TCP/IPv4 segment to the IPv4 tracker.
func (w *Worker) tcpv4(ipPacket []byte, ipHeaderLen, pktLen int, ts time.Time) bool {
	tcpSize := pktLen - ipHeaderLen
	if tcpSize < tcpHeaderLen {
		stats.PacketsIgnored.Inc()
		return true
	}

	tcpHdr := ipPacket[ipHeaderLen:]
	doff := int(tcpHdr[12] >> 4)
	if doff < 5 || tcpSize < doff*4 {
		stats.PacketsIgnored.Inc()
		return true
	}

	saddr, err := netaddr.FromBytes(ipPacket[12:16])
	if err != nil {
		return false
	}
	daddr, err := netaddr.FromBytes(ipPacket[16:20])
	if err != nil {
		return false
	}

	return w.tcpAdd(w.tcp4, saddr, daddr, tcpHdr, doff, pktLen, tcpSize, ts)
}

// tcpv6 feeds one observed TCP/IPv6 segment to the IPv6 tracker.
func (w *Worker) tcpv6(ipPacket []byte, ipHeaderLen, pktLen int, ts time.Time) bool {
	tcpSize := pktLen - ipHeaderLen
	if tcpSize < tcpHeaderLen {
		stats.PacketsIgnored.Inc()
		return true
	}

	tcpHdr := ipPacket[ipHeaderLen:]
	doff := int(tcpHdr[12] >> 4)
	if doff < 5 || tcpSize < doff*4 {
		stats.PacketsIgnored.Inc()
		return true
	}

	saddr, err := netaddr.FromBytes(ipPacket[8:24])
	if err != nil {
		return false
	}
	daddr, err := netaddr.FromBytes(ipPacket[24:40])
	if err != nil {
		return false
	}

	return w.tcpAdd(w.tcp6, saddr, daddr, tcpHdr, doff, pktLen, tcpSize, ts)
}

func (w *Worker) tcpAdd(tracker *tcp.Tracker, saddr, daddr netaddr.Addr, tcpHdr []byte, doff, pktLen, tcpSize int, ts time.Time) bool {
	sport := binary.BigEndian.Uint16(tcpHdr[0:2])
	dport := binary.BigEndian.Uint16(tcpHdr[2:4])
	flags := tcpFlags(tcpHdr)
	payload := tcpSize - doff*4

	// Add returns false only for a SYN refused at capacity, which is a
	// silent drop, not a malformed packet.
	if _, err := tracker.Add(saddr, daddr, sport, dport, flags, uint16(pktLen), uint16(payload), toMicroseconds(ts)); err != nil {
		w.recordFatal(errors.Wrap(err, "worker: tcp tracker add"))
		return false
	}
	return true
}

// tcpFlags reads the flags octet the way the original's tcp_flags() helper
// does: byte 13 of the TCP header, not just the low 6 RFC 793 bits.
func tcpFlags(tcpHdr []byte) uint8 {
	return tcpHdr[13]
}

// udpv4 builds a dns or udp event from an observed UDP/IPv4 datagram.
func (w *Worker) udpv4(ipPacket []byte, ipHeaderLen, pktLen int, ts time.Time) bool {
	if pktLen-ipHeaderLen < udpHeaderLen {
		stats.PacketsIgnored.Inc()
		return true
	}

	udpHdr := ipPacket[ipHeaderLen:]
	udpLen := int(binary.BigEndian.Uint16(udpHdr[4:6]))
	if udpLen < udpHeaderLen || ipHeaderLen+udpLen != pktLen {
		stats.PacketsIgnored.Inc()
		return true
	}

	saddr, err := netaddr.FromBytes(ipPacket[12:16])
	if err != nil {
		return false
	}
	daddr, err := netaddr.FromBytes(ipPacket[16:20])
	if err != nil {
		return false
	}

	return w.udpCommon(saddr, daddr, udpHdr, udpLen, pktLen, ts)
}

// udpv6 builds a dns or udp event from an observed UDP/IPv6 datagram.
func (w *Worker) udpv6(ipPacket []byte, ipHeaderLen, pktLen int, ts time.Time) bool {
	if pktLen-ipHeaderLen < udpHeaderLen {
		stats.PacketsIgnored.Inc()
		return true
	}

	udpHdr := ipPacket[ipHeaderLen:]
	udpLen := int(binary.BigEndian.Uint16(udpHdr[4:6]))
	if udpLen < udpHeaderLen || ipHeaderLen+udpLen != pktLen {
		stats.PacketsIgnored.Inc()
		return true
	}

	saddr, err := netaddr.FromBytes(ipPacket[8:24])
	if err != nil {
		return false
	}
	daddr, err := netaddr.FromBytes(ipPacket[24:40])
	if err != nil {
		return false
	}

	return w.udpCommon(saddr, daddr, udpHdr, udpLen, pktLen, ts)
}

func (w *Worker) udpCommon(saddr, daddr netaddr.Addr, udpHdr []byte, udpLen, pktLen int, ts time.Time) bool {
	sport := binary.BigEndian.Uint16(udpHdr[0:2])
	dport := binary.BigEndian.Uint16(udpHdr[2:4])

	if sport == dnsmsg.Port || dport == dnsmsg.Port {
		if msg, ok := dnsmsg.Parse(udpHdr[udpHeaderLen:udpLen]); ok {
			ev := &event.DNS{
				Base: event.Base{
					Timestamp: toMicroseconds(ts),
					Saddr:     saddr,
					Daddr:     daddr,
				},
				Sport:       sport,
				Dport:       dport,
				Transferred: uint16(pktLen),
				QType:       msg.QType,
				Domain:      msg.Domain,
			}
			for _, r := range msg.Responses {
				ev.Responses = append(ev.Responses, event.DNSResponse{Addr: r.Addr})
			}
			return w.write(ev)
		}
	}

	ev := &event.UDP{
		Base: event.Base{
			Timestamp: toMicroseconds(ts),
			Saddr:     saddr,
			Daddr:     daddr,
		},
		Sport:       sport,
		Dport:       dport,
		Transferred: uint16(pktLen),
	}

	return w.write(ev)
}
