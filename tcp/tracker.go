package tcp

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/guidoreina/netmon/event"
	"github.com/guidoreina/netmon/internal/lookup3"
	"github.com/guidoreina/netmon/netaddr"
	"github.com/guidoreina/netmon/stats"
)

// log is the package-wide logger, silent until a caller opts in with
// SetLogger.
var log = zap.NewNop()

// SetLogger installs l as the tracker's logger for expiry sweeps, dropped
// SYNs and invalid state transitions.
func SetLogger(l *zap.Logger) {
	log = l
}

// Hash table sizing bounds (spec §4.3). The original's max_size is
// word-size-dependent (4*sizeof(size_t) bits of shift); Go has no
// equivalent 32/64-bit split worth preserving, so MaxSize is pinned to a
// single generous ceiling that stays within a 32-bit int's range on
// every platform.
const (
	MinSize     = 1 << 8
	MaxSize     = 1 << 30
	DefaultSize = 1 << 12

	MinConnections        = MinSize
	MaxConnections        = MaxSize
	DefaultMaxConnections = 1 << 20

	MinTimeout     = 5 * time.Second
	DefaultTimeout = 2 * time.Hour

	MinTimeWait     = 1 * time.Second
	DefaultTimeWait = 2 * time.Minute

	connectionAllocation = 1024
)

// ErrInvalidConfig is returned by New when a configuration parameter falls
// outside its allowed range.
var ErrInvalidConfig = errors.New("tcp: invalid tracker configuration")

// Sink receives the events a Tracker emits. *eventfile.Writer satisfies
// this directly.
type Sink interface {
	Write(event.Event) error
}

// Tracker is a hash table of in-progress and recently closed TCP
// connections, keyed by canonicalized (addr1, port1, addr2, port2).
// Buckets hold a sentinel connection whose prev/next form the bucket's
// circular doubly linked list, mirroring the original's intrusive
// util::node header.
type Tracker struct {
	buckets []connection // buckets[i] is bucket i's sentinel header
	mask    uint32

	maxConnections uint64
	nconnections   uint64

	free *connection

	timeout  uint64 // microseconds
	timeWait uint64 // microseconds

	sink Sink
}

// New builds a Tracker with size buckets (rounded behavior enforced by the
// caller — size must already be a power of two in [MinSize, MaxSize]),
// admitting at most maxConns live connections, expiring non-closed
// connections after timeout of inactivity and closed connections
// time_wait after their last packet.
func New(size int, maxConns int, timeout, timeWait time.Duration, sink Sink) (*Tracker, error) {
	if size < MinSize || size > MaxSize || size&(size-1) != 0 {
		return nil, ErrInvalidConfig
	}
	if maxConns < MinConnections || maxConns > MaxConnections {
		return nil, ErrInvalidConfig
	}
	if timeout < MinTimeout || timeWait < MinTimeWait {
		return nil, ErrInvalidConfig
	}

	t := &Tracker{
		buckets:        make([]connection, size),
		mask:           uint32(size - 1),
		maxConnections: uint64(maxConns),
		timeout:        uint64(timeout / time.Microsecond),
		timeWait:       uint64(timeWait / time.Microsecond),
		sink:           sink,
	}

	for i := range t.buckets {
		t.buckets[i].prev = &t.buckets[i]
		t.buckets[i].next = &t.buckets[i]
	}

	if !t.allocateConnections(connectionAllocation) {
		return nil, ErrInvalidConfig
	}

	return t, nil
}

// Add records one observed TCP packet. now and every connection timestamp
// is in microseconds since epoch, matching the event stream's Timestamp
// field. It returns false only when the tracker is at capacity and the
// packet was a SYN that could not open a new connection (spec §4.3's
// capacity policy: the SYN is silently dropped, no event is written).
func (t *Tracker) Add(saddr, daddr netaddr.Addr, sport, dport uint16, tcpflags uint8, pktsize, payloadSize uint16, now uint64) (bool, error) {
	switch {
	case sport < dport:
		return t.addCanonical(saddr, sport, daddr, dport, tcpflags, pktsize, payloadSize, FromAddr1, now)
	case sport > dport:
		return t.addCanonical(daddr, dport, saddr, sport, tcpflags, pktsize, payloadSize, FromAddr2, now)
	default:
		if netaddr.Compare(saddr, daddr) <= 0 {
			return t.addCanonical(saddr, sport, daddr, dport, tcpflags, pktsize, payloadSize, FromAddr1, now)
		}
		return t.addCanonical(daddr, dport, saddr, sport, tcpflags, pktsize, payloadSize, FromAddr2, now)
	}
}

func bucketIndex(addr1, addr2 netaddr.Addr, port1, port2 uint16) uint32 {
	ports := uint32(port1)<<16 | uint32(port2)
	return lookup3.Hash3Words(addr1.Hash(), addr2.Hash(), ports, 0)
}

func (t *Tracker) addCanonical(addr1 netaddr.Addr, port1 uint16, addr2 netaddr.Addr, port2 uint16, tcpflags uint8, pktsize, payloadSize uint16, dir Direction, now uint64) (bool, error) {
	bucket := bucketIndex(addr1, addr2, port1, port2) & t.mask
	header := &t.buckets[bucket]

	c := header.next
	for c != header {
		if c.state != StateClosed {
			if c.lastPacket+t.timeout > now {
				if c.matches(addr1, addr2, port1, port2) {
					if c.processPacket(dir, tcpflags, pktsize, now) {
						if payloadSize > 0 {
							if err := t.emitData(addr1, port1, addr2, port2, payloadSize, dir, now, c.creation); err != nil {
								return true, err
							}
						}
						return true, nil
					}

					// Invalid flag combination for the connection's state:
					// tear it down and ignore this packet.
					log.Debug("tcp: invalid state transition, dropping connection",
						zap.Uint16("sport", port1), zap.Uint16("dport", port2))
					if err := t.remove(c, now); err != nil {
						return true, err
					}
					return true, nil
				}
				c = c.next
			} else {
				next := c.next
				if err := t.remove(c, now); err != nil {
					return true, err
				}
				c = next
			}
		} else if c.lastPacket+t.timeWait > now {
			c = c.next
		} else {
			next := c.next
			if err := t.remove(c, now); err != nil {
				return true, err
			}
			c = next
		}
	}

	// No matching connection: a bare SYN opens a new one.
	if tcpflags&flagMask == FlagSYN {
		conn := t.getFreeConnection()
		if conn == nil {
			log.Warn("tcp: dropping SYN, connection table at capacity",
				zap.Uint64("max_connections", t.maxConnections))
			stats.FlowsDropped.Inc()
			return false, nil
		}

		conn.prev = header
		conn.next = header.next
		header.next.prev = conn
		header.next = conn

		conn.assign(addr1, addr2, port1, port2)
		conn.init(dir, pktsize, now)

		if err := t.emitBegin(conn, now); err != nil {
			return true, err
		}

		t.nconnections++
		stats.FlowsTracked.Inc()
		stats.FlowsActive.Set(float64(t.nconnections))
	}

	return true, nil
}

// RemoveExpired sweeps every bucket, closing out connections that have
// been idle past their timeout (or, once closed, past time_wait), in
// microseconds since epoch.
func (t *Tracker) RemoveExpired(now uint64) error {
	before := t.nconnections

	for i := range t.buckets {
		header := &t.buckets[i]
		c := header.next

		for c != header {
			if c.state != StateClosed {
				if c.lastPacket+t.timeout > now {
					c = c.next
					continue
				}
			} else if c.lastPacket+t.timeWait > now {
				c = c.next
				continue
			}

			next := c.next
			if err := t.remove(c, now); err != nil {
				return err
			}
			c = next
		}
	}

	if expired := before - t.nconnections; expired > 0 {
		log.Debug("tcp: expiry sweep removed connections", zap.Uint64("count", expired))
	}
	return nil
}

// remove unlinks conn from its bucket, emits its tcp_end event and returns
// it to the free list.
func (t *Tracker) remove(conn *connection, now uint64) error {
	if err := t.emitEnd(conn, now); err != nil {
		return err
	}

	conn.prev.next = conn.next
	conn.next.prev = conn.prev

	conn.next = t.free
	t.free = conn

	t.nconnections--
	stats.FlowsActive.Set(float64(t.nconnections))
	return nil
}

// Stats reports bucket occupancy, the Go equivalent of the original's
// standalone evconnections dump tool (now folded into the worker's
// shutdown statistics table instead of a separate CLI).
type Stats struct {
	Buckets         int
	NonEmptyBuckets int
	MaxChainLength  int
	Connections     uint64
	MaxConnections  uint64
}

// Stats walks every bucket and reports occupancy, for capacity tuning.
func (t *Tracker) Stats() Stats {
	s := Stats{
		Buckets:        len(t.buckets),
		Connections:    t.nconnections,
		MaxConnections: t.maxConnections,
	}

	for i := range t.buckets {
		header := &t.buckets[i]
		length := 0
		for c := header.next; c != header; c = c.next {
			length++
		}
		if length > 0 {
			s.NonEmptyBuckets++
		}
		if length > s.MaxChainLength {
			s.MaxChainLength = length
		}
	}

	return s
}

func (t *Tracker) getFreeConnection() *connection {
	if t.free == nil && !t.allocateConnections(connectionAllocation) {
		return nil
	}

	conn := t.free
	t.free = t.free.next
	return conn
}

// allocateConnections grows the free list by up to count connections,
// never past maxConnections in total. It mirrors the original's chunked
// malloc-on-demand pool; Go simply allocates the structs directly.
func (t *Tracker) allocateConnections(count int) bool {
	diff := t.maxConnections - t.nconnections
	if diff == 0 {
		return false
	}
	if diff < uint64(count) {
		count = int(diff)
	}

	for i := 0; i < count; i++ {
		conn := &connection{}
		conn.next = t.free
		t.free = conn
	}
	return true
}

func (t *Tracker) emitBegin(conn *connection, now uint64) error {
	ev := &event.TCPBegin{Base: event.Base{Timestamp: now}}

	if conn.activeOpener == OriginatorAddr2 {
		ev.Saddr, ev.Daddr = conn.addr2, conn.addr1
		ev.Sport, ev.Dport = conn.port2, conn.port1
	} else {
		ev.Saddr, ev.Daddr = conn.addr1, conn.addr2
		ev.Sport, ev.Dport = conn.port1, conn.port2
	}

	return t.write(ev)
}

func (t *Tracker) emitData(addr1 netaddr.Addr, port1 uint16, addr2 netaddr.Addr, port2 uint16, payloadSize uint16, dir Direction, now, creation uint64) error {
	ev := &event.TCPData{
		Base:     event.Base{Timestamp: now},
		Creation: creation,
		Payload:  payloadSize,
	}

	if dir == FromAddr1 {
		ev.Saddr, ev.Daddr = addr1, addr2
		ev.Sport, ev.Dport = port1, port2
	} else {
		ev.Saddr, ev.Daddr = addr2, addr1
		ev.Sport, ev.Dport = port2, port1
	}

	return t.write(ev)
}

func (t *Tracker) emitEnd(conn *connection, now uint64) error {
	ev := &event.TCPEnd{Creation: conn.creation}

	if conn.activeOpener == OriginatorAddr2 {
		ev.Saddr, ev.Daddr = conn.addr2, conn.addr1
		ev.Sport, ev.Dport = conn.port2, conn.port1
		ev.TransferredClient = conn.sent[1]
		ev.TransferredServer = conn.sent[0]
	} else {
		ev.Saddr, ev.Daddr = conn.addr1, conn.addr2
		ev.Sport, ev.Dport = conn.port1, conn.port2
		ev.TransferredClient = conn.sent[0]
		ev.TransferredServer = conn.sent[1]
	}

	switch conn.state {
	case StateClosing, StateClosed, StateFailure:
		ev.Timestamp = conn.lastPacket
	default:
		ev.Timestamp = now
	}

	return t.write(ev)
}

func (t *Tracker) write(ev event.Event) error {
	if err := t.sink.Write(ev); err != nil {
		return errors.Wrap(err, "tcp: write event")
	}
	stats.EventsEmitted.WithLabelValues(ev.Kind().String()).Inc()
	return nil
}
