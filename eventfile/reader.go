package eventfile

import (
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"

	"github.com/guidoreina/netmon/dnscache"
	"github.com/guidoreina/netmon/event"
)

// MinLen is the smallest legal length-prefixed record on disk: a 2-byte
// length field plus the smallest IPv4 base body.
const MinLen = 2 + event.MinLen4

// Reader provides bounds-checked forward iteration over an event file's
// records, backed by a read-only memory mapping of the whole file. Every
// dns event decoded by Next feeds component F's inverted cache (spec
// §4.4: "A DNS response, when observed, additionally updates the reader's
// inverted cache (F) keyed by each answer's address"), so later events
// involving one of its answer addresses can be annotated via Hostnames.
type Reader struct {
	f      *os.File
	mm     mmap.MMap
	header Header
	pos    int
	cache  *dnscache.Cache
}

// Open memory-maps filename and validates its header.
func Open(filename string) (*Reader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "eventfile: open")
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "eventfile: stat")
	}

	if info.Size() < HeaderSize {
		f.Close()
		return nil, ErrShortHeader
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "eventfile: mmap")
	}

	header, err := DecodeHeader(m)
	if err != nil {
		m.Unmap()
		f.Close()
		return nil, err
	}

	return &Reader{f: f, mm: m, header: header, pos: HeaderSize, cache: dnscache.New()}, nil
}

// Header returns the file's first/last timestamp header.
func (r *Reader) Header() Header { return r.header }

// Cache returns the reader's inverted DNS cache (component F), built up
// from every dns event Next has decoded so far.
func (r *Reader) Cache() *dnscache.Cache { return r.cache }

// Hostnames returns the most recently learned hostname for ev's source and
// destination address, as recorded in the reader's inverted DNS cache, or
// "" for either side that has no known hostname yet.
func (r *Reader) Hostnames(ev event.Event) (srcHost, dstHost string) {
	saddr, daddr := event.Addrs(ev)
	srcHost, _ = r.cache.Host(saddr)
	dstHost, _ = r.cache.Host(daddr)
	return srcHost, dstHost
}

// Close unmaps the file and releases its descriptor.
func (r *Reader) Close() error {
	if r.mm != nil {
		if err := r.mm.Unmap(); err != nil {
			r.f.Close()
			return errors.Wrap(err, "eventfile: munmap")
		}
		r.mm = nil
	}
	return r.f.Close()
}

// NextRaw returns the next record's body (the bytes following its u16
// length prefix) and its timestamp, without decoding into an Event. It
// returns io.EOF once every byte has been consumed. A record that doesn't
// fit in the remaining bytes, or is shorter than the minimum body length,
// is reported as a malformed-record error — callers that need to keep
// reading past a torn trailing record should stop at the first such error.
func (r *Reader) NextRaw() (body []byte, timestamp uint64, err error) {
	left := len(r.mm) - r.pos
	if left == 0 {
		return nil, 0, io.EOF
	}
	if left < 2 {
		return nil, 0, errors.Wrap(ErrShortHeader, "eventfile: truncated length prefix")
	}

	length := int(r.mm[r.pos])<<8 | int(r.mm[r.pos+1])
	if length < event.MinLen4 || 2+length > left {
		return nil, 0, errors.New("eventfile: malformed record length")
	}

	rec := r.mm[r.pos+2 : r.pos+2+length]
	if len(rec) < 8 {
		return nil, 0, errors.New("eventfile: record too short for timestamp")
	}

	ts := uint64(rec[0])<<56 | uint64(rec[1])<<48 | uint64(rec[2])<<40 | uint64(rec[3])<<32 |
		uint64(rec[4])<<24 | uint64(rec[5])<<16 | uint64(rec[6])<<8 | uint64(rec[7])

	r.pos += 2 + length

	return rec, ts, nil
}

// Next decodes the next event in the file. It returns io.EOF once every
// record has been consumed. A decoded dns event updates the reader's
// inverted cache with each of its answer addresses before being returned.
func (r *Reader) Next() (event.Event, error) {
	body, _, err := r.NextRaw()
	if err != nil {
		return nil, err
	}

	ev, err := event.Decode(body)
	if err != nil {
		return nil, err
	}

	if dns, ok := ev.(*event.DNS); ok {
		for _, resp := range dns.Responses {
			r.cache.Add(resp.Addr, dns.Domain)
		}
	}

	return ev, nil
}
