package eventfile

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/guidoreina/netmon/event"
)

// MinBufferSize is the smallest buffer size write will accept: a buffer
// that can't hold one maximal event would deadlock the flush logic.
const MinBufferSize = event.MaxLen

// DefaultBufferSize is the buffer size the worker passes to NewWriter when
// no writer buffer size is configured, and the one Sort uses. NewWriter
// itself raises a zero or too-small size only to MinBufferSize.
const DefaultBufferSize = 32 * 1024

// Writer appends events to a file, buffering writes and maintaining the
// running first/last timestamp for the header.
type Writer struct {
	f          *os.File
	header     Header
	buf        []byte
	bufferSize int
}

// NewWriter creates a Writer that buffers up to bufferSize bytes before
// flushing to disk. bufferSize below MinBufferSize is raised to it.
func NewWriter(bufferSize int) *Writer {
	if bufferSize < MinBufferSize {
		bufferSize = MinBufferSize
	}
	return &Writer{
		buf:        make([]byte, 0, bufferSize*2),
		bufferSize: bufferSize,
	}
}

// Open opens filename for appending. A pre-existing file has its header
// read back (its First timestamp and running Last are preserved) and
// subsequent writes are appended after its current records; a missing or
// empty file gets a fresh placeholder header, patched in on Close.
func (w *Writer) Open(filename string) error {
	f, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return errors.Wrap(err, "eventfile: open")
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return errors.Wrap(err, "eventfile: stat")
	}

	switch {
	case info.Size() == 0:
		if _, err := f.Write(make([]byte, HeaderSize)); err != nil {
			f.Close()
			return errors.Wrap(err, "eventfile: write placeholder header")
		}
		w.header = Header{}

	case info.Size() < HeaderSize:
		f.Close()
		return ErrShortHeader

	default:
		hdr := make([]byte, HeaderSize)
		if _, err := f.ReadAt(hdr, 0); err != nil {
			f.Close()
			return errors.Wrap(err, "eventfile: read header")
		}
		header, err := DecodeHeader(hdr)
		if err != nil {
			f.Close()
			return err
		}
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			return errors.Wrap(err, "eventfile: seek to end")
		}
		w.header = header
	}

	w.f = f
	w.buf = w.buf[:0]
	return nil
}

// Write encodes ev and appends it to the buffer, flushing to disk if the
// buffer has reached its configured size.
func (w *Writer) Write(ev event.Event) error {
	rec, err := event.Encode(ev)
	if err != nil {
		return errors.Wrap(err, "eventfile: encode")
	}

	w.buf = append(w.buf, rec...)

	ts := event.Timestamp(ev)
	if w.header.First == 0 {
		w.header.First = ts
	}
	w.header.Last = ts

	if len(w.buf) >= w.bufferSize {
		return w.flush()
	}
	return nil
}

// Flush writes any buffered bytes to disk without closing the file.
func (w *Writer) Flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	return w.flush()
}

func (w *Writer) flush() error {
	if _, err := w.f.Write(w.buf); err != nil {
		return errors.Wrap(err, "eventfile: flush")
	}
	w.buf = w.buf[:0]
	return nil
}

// Close flushes any remaining buffered bytes, patches the header in place
// and closes the file.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}

	if err := w.Flush(); err != nil {
		w.f.Close()
		return err
	}

	if _, err := w.f.WriteAt(w.header.Encode(), 0); err != nil {
		w.f.Close()
		return errors.Wrap(err, "eventfile: patch header")
	}

	err := w.f.Close()
	w.f = nil
	return err
}
