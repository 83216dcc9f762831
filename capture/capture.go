// Package capture provides the opaque frame+timestamp source the worker
// pipeline reads from (spec §6: capture method ∈ {"pcap", "ring-buffer",
// "socket"}). The original's net::capture::ring_buffer / socket classes
// push frames into a caller-supplied ethernet/idle callback pair; this
// package instead exposes a pull-based Source, which is the idiomatic Go
// shape for the same contract and lets the worker drive its own idle/sweep
// cadence with a ticker instead of a poll timeout.
package capture

import (
	"time"

	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

// ErrClosed is a sentinel for a closed source. None of the sources in this
// package return it: after Close, ReadFrame reports whatever error the
// underlying handle or file returns.
var ErrClosed = errors.New("capture: source closed")

// Source yields raw link-layer frames with their capture timestamps.
type Source interface {
	// ReadFrame blocks for the next frame. A file-replay source returns
	// io.EOF once exhausted; any other error is a capture failure the
	// worker should log and treat as a reason to stop.
	ReadFrame() (frame []byte, ts time.Time, err error)

	// Close unblocks any in-flight ReadFrame and releases the underlying
	// handle or file. Safe to call once; later calls are no-ops.
	Close() error

	// LinkType reports the link-layer framing frames are delivered in.
	LinkType() layers.LinkType
}
