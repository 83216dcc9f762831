package worker

import (
	"time"

	"github.com/pkg/errors"

	"github.com/guidoreina/netmon/eventfile"
	"github.com/guidoreina/netmon/tcp"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("worker: invalid configuration")

// NoProcessor means the worker's goroutine is left unpinned, matching the
// original's worker::no_processor sentinel.
const NoProcessor = -1

// Config holds everything one worker needs to open its capture source,
// trackers and event file; argument parsing and defaulting live in cmd/.
type Config struct {
	// ID identifies this worker among its siblings; used to name its event
	// file (events-<Device>.<ID>.bin) per spec §5.
	ID int

	// Processor pins the worker's capture goroutine to a specific CPU, or
	// NoProcessor to leave scheduling to the OS.
	Processor int

	// Device is the interface name captured from; only used for naming the
	// event file, not for opening the capture source itself (the caller
	// already built that and passes it to New).
	Device string

	// EventsDir is the directory event files are written to.
	EventsDir string

	// WriterBufferSize is the writer's in-memory buffer size in bytes.
	WriterBufferSize int

	TCPv4Size      int
	TCPv4MaxConns  int
	TCPv6Size      int
	TCPv6MaxConns  int
	TCPTimeout     time.Duration
	TCPTimeWait    time.Duration
}

// Validate checks every field is within its allowed range, wrapping
// ErrInvalidConfig with the offending field name.
func (c Config) Validate() error {
	if c.EventsDir == "" {
		return errors.Wrap(ErrInvalidConfig, "events directory")
	}
	if c.WriterBufferSize != 0 && c.WriterBufferSize < eventfile.MinBufferSize {
		return errors.Wrap(ErrInvalidConfig, "writer buffer size")
	}
	if c.TCPv4Size < tcp.MinSize || c.TCPv4Size > tcp.MaxSize || c.TCPv4Size&(c.TCPv4Size-1) != 0 {
		return errors.Wrap(ErrInvalidConfig, "tcp ipv4 table size")
	}
	if c.TCPv6Size < tcp.MinSize || c.TCPv6Size > tcp.MaxSize || c.TCPv6Size&(c.TCPv6Size-1) != 0 {
		return errors.Wrap(ErrInvalidConfig, "tcp ipv6 table size")
	}
	if c.TCPv4MaxConns < tcp.MinConnections || c.TCPv4MaxConns > tcp.MaxConnections {
		return errors.Wrap(ErrInvalidConfig, "tcp ipv4 max connections")
	}
	if c.TCPv6MaxConns < tcp.MinConnections || c.TCPv6MaxConns > tcp.MaxConnections {
		return errors.Wrap(ErrInvalidConfig, "tcp ipv6 max connections")
	}
	if c.TCPTimeout < tcp.MinTimeout {
		return errors.Wrap(ErrInvalidConfig, "tcp connection timeout")
	}
	if c.TCPTimeWait < tcp.MinTimeWait {
		return errors.Wrap(ErrInvalidConfig, "tcp time-wait")
	}
	return nil
}
