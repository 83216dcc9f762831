// Package tcp tracks TCP connections across a live capture or replayed
// event stream, per spec §4.3. It keys connections by canonicalized
// address/port pair, drives an explicit state machine off TCP flags, and
// emits tcp_begin/tcp_data/tcp_end events as connections start, carry
// payload and end.
package tcp

import (
	"github.com/guidoreina/netmon/netaddr"
)

// TCP flags this tracker cares about; flagMask isolates exactly these bits
// from the flags byte observed on the wire.
// http://cradpdf.drdc-rddc.gc.ca/PDFS/unc25/p520460.pdf
const (
	FlagACK = 0x10
	FlagRST = 0x04
	FlagSYN = 0x02
	FlagFIN = 0x01

	flagMask = FlagACK | FlagRST | FlagSYN | FlagFIN
)

// State is a connection's position in the TCP handshake/teardown state
// machine.
type State uint8

const (
	StateListen State = iota
	StateConnectionRequested
	StateConnectionEstablished
	StateDataTransfer
	StateClosing
	StateClosed
	StateFailure
)

func (s State) String() string {
	switch s {
	case StateListen:
		return "listen"
	case StateConnectionRequested:
		return "connection_requested"
	case StateConnectionEstablished:
		return "connection_established"
	case StateDataTransfer:
		return "data_transfer"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Originator names which canonical address (addr1 or addr2) opened or
// closed the connection.
type Originator uint8

const (
	OriginatorAddr1 Originator = iota
	OriginatorAddr2
)

// Direction names which canonical address a given packet came from. Its
// values deliberately match Originator's so a direction can be compared
// directly against active_opener/active_closer.
type Direction uint8

const (
	FromAddr1 Direction = Direction(OriginatorAddr1)
	FromAddr2 Direction = Direction(OriginatorAddr2)
)

// connection is one tracked TCP flow, keyed by its canonical address/port
// pair. prev/next link it into its bucket's doubly linked list while live;
// next alone is reused as the free list's singly linked chain once the
// connection has been returned to the pool.
type connection struct {
	prev, next *connection

	addr1, addr2 netaddr.Addr
	port1, port2 uint16

	state State

	activeOpener Originator
	activeCloser Originator

	sent [2]uint64

	creation   uint64
	lastPacket uint64
}

// matches reports whether c and other key the same canonical flow.
func (c *connection) matches(addr1, addr2 netaddr.Addr, port1, port2 uint16) bool {
	return c.port1 == port1 && c.port2 == port2 &&
		netaddr.Equal(c.addr1, addr1) && netaddr.Equal(c.addr2, addr2)
}

// assign sets the connection's key fields, ahead of init.
func (c *connection) assign(addr1, addr2 netaddr.Addr, port1, port2 uint16) {
	c.addr1 = addr1
	c.addr2 = addr2
	c.port1 = port1
	c.port2 = port2
}

// init starts a fresh connection off the first SYN seen for it.
func (c *connection) init(dir Direction, size uint16, now uint64) {
	c.state = StateConnectionRequested
	c.activeOpener = Originator(dir)

	c.sent[dir] = uint64(size)
	c.sent[1-dir] = 0

	c.creation = now
	c.lastPacket = now
}

// processPacket advances the connection's state machine for one observed
// packet. It returns false when the flag combination is invalid for the
// current state, at which point the connection has moved to StateFailure
// and the caller should remove it and ignore the packet.
func (c *connection) processPacket(dir Direction, flags uint8, size uint16, now uint64) bool {
	flags &= flagMask

	switch c.state {
	case StateListen:
		if flags == FlagSYN {
			c.init(dir, size, now)
			return true
		}

	case StateConnectionRequested:
		switch flags {
		case FlagSYN | FlagACK:
			if Originator(dir) != c.activeOpener {
				c.state = StateConnectionEstablished
				c.sent[dir] += uint64(size)
				c.lastPacket = now
				return true
			}
		case FlagSYN, FlagACK:
			// Retransmission / out-of-order?
			if Originator(dir) == c.activeOpener {
				return true
			}
		case FlagRST, FlagRST | FlagACK:
			c.state = StateClosed
			c.activeCloser = Originator(dir)
			c.sent[dir] += uint64(size)
			c.lastPacket = now
			return true
		}

	case StateConnectionEstablished:
		switch flags {
		case FlagACK:
			if Originator(dir) == c.activeOpener {
				c.state = StateDataTransfer
				c.sent[dir] += uint64(size)
				c.lastPacket = now
				return true
			}
		case FlagSYN:
			// Retransmission / out-of-order?
			if Originator(dir) == c.activeOpener {
				return true
			}
		case FlagSYN | FlagACK:
			// Retransmission / out-of-order?
			if Originator(dir) != c.activeOpener {
				return true
			}
		case FlagRST, FlagRST | FlagACK:
			c.state = StateClosed
			c.activeCloser = Originator(dir)
			c.sent[dir] += uint64(size)
			c.lastPacket = now
			return true
		}

	case StateDataTransfer:
		switch flags {
		case FlagACK:
			c.sent[dir] += uint64(size)
			c.lastPacket = now
			return true
		case FlagFIN, FlagFIN | FlagACK:
			c.state = StateClosing
			c.activeCloser = Originator(dir)
			c.sent[dir] += uint64(size)
			c.lastPacket = now
			return true
		case FlagRST, FlagRST | FlagACK:
			c.state = StateClosed
			c.activeCloser = Originator(dir)
			c.sent[dir] += uint64(size)
			c.lastPacket = now
			return true
		}

	case StateClosing:
		switch flags {
		case FlagACK:
			c.sent[dir] += uint64(size)
			c.lastPacket = now
			return true
		case FlagFIN, FlagFIN | FlagACK:
			if Originator(dir) != c.activeCloser {
				c.state = StateClosed
				c.sent[dir] += uint64(size)
				c.lastPacket = now
			}
			return true
		case FlagRST, FlagRST | FlagACK:
			c.state = StateClosed
			c.sent[dir] += uint64(size)
			c.lastPacket = now
			return true
		}

	case StateClosed:
		switch flags {
		case FlagACK, FlagFIN, FlagFIN | FlagACK, FlagRST, FlagRST | FlagACK:
			c.sent[dir] += uint64(size)
			c.lastPacket = now
			return true
		}

	case StateFailure:
		return false
	}

	c.state = StateFailure
	return false
}
