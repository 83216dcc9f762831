// Package eventfile implements the append-only event log format: a 24-byte
// header followed by a stream of length-prefixed event records, plus the
// writer, mmap-backed reader, k-way merger and in-memory tcp_end sorter that
// operate on it (spec §4.4/§5).
package eventfile

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Magic identifies an event file; chosen to read as "netmon" followed by a
// 16-bit format version (1).
const Magic uint64 = 0x6e65746d6f6e0001

// HeaderSize is the fixed on-disk size of Header: magic + first + last.
const HeaderSize = 8 + 8 + 8

// ErrBadMagic is returned when a file's magic number doesn't match.
var ErrBadMagic = errors.New("eventfile: bad magic number")

// ErrShortHeader is returned when a file is too small to hold a header.
var ErrShortHeader = errors.New("eventfile: file shorter than header")

// Header is the fixed-size prefix of every event file.
type Header struct {
	First uint64 // timestamp of the first event, 0 if the file is empty
	Last  uint64 // timestamp of the last event
}

// Encode serializes h into a HeaderSize-byte slice.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint64(buf[0:8], Magic)
	binary.BigEndian.PutUint64(buf[8:16], h.First)
	binary.BigEndian.PutUint64(buf[16:24], h.Last)
	return buf
}

// DecodeHeader reads a Header from the start of buf.
func DecodeHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderSize {
		return h, ErrShortHeader
	}
	if binary.BigEndian.Uint64(buf[0:8]) != Magic {
		return h, ErrBadMagic
	}
	h.First = binary.BigEndian.Uint64(buf[8:16])
	h.Last = binary.BigEndian.Uint64(buf[16:24])
	return h, nil
}
