package eventfile

import (
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
)

// MaxMergeBufferSize is the output buffer size before an intermediate flush
// to disk, matching the writer's general texture.
const MaxMergeBufferSize = 64 * 1024

// ErrTooFewInputs is returned when Merge is given fewer than two inputs.
var ErrTooFewInputs = errors.New("eventfile: merge requires at least two input files")

// ErrOutputExists is returned when the requested output path already exists.
var ErrOutputExists = errors.New("eventfile: output file already exists")

type mergeEntry struct {
	r         *Reader
	body      []byte
	timestamp uint64
	exhausted bool
}

// advance pulls the next raw record from e.r. A clean io.EOF marks e
// exhausted; any other error (a malformed or torn record) is propagated so
// the caller can abort the merge instead of silently truncating this input.
func (e *mergeEntry) advance() error {
	body, ts, err := e.r.NextRaw()
	if err != nil {
		if errors.Is(err, io.EOF) {
			e.exhausted = true
			e.timestamp = math.MaxUint64
			return nil
		}
		return err
	}
	e.body = body
	e.timestamp = ts
	return nil
}

// Merge performs a k-way merge of infiles (sorted by timestamp within each
// file, as every event file naturally is) into outfile, which must not
// already exist. The merged file carries its own header with the overall
// first/last timestamp.
func Merge(infiles []string, outfile string) error {
	if len(infiles) < 2 {
		return ErrTooFewInputs
	}

	if _, err := os.Stat(outfile); err == nil {
		return ErrOutputExists
	}

	readers := make([]*Reader, 0, len(infiles))
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	for _, name := range infiles {
		r, err := Open(name)
		if err != nil {
			return err
		}
		readers = append(readers, r)
	}

	out, err := os.Create(outfile)
	if err != nil {
		return errors.Wrap(err, "eventfile: create output")
	}

	fail := func(err error) error {
		out.Close()
		os.Remove(outfile)
		return err
	}

	if _, err := out.Write(make([]byte, HeaderSize)); err != nil {
		return fail(errors.Wrap(err, "eventfile: write placeholder header"))
	}

	entries := make([]mergeEntry, len(readers))
	header := Header{First: math.MaxUint64, Last: 0}

	for i, r := range readers {
		entries[i].r = r
		if err := entries[i].advance(); err != nil {
			return fail(err)
		}
		if !entries[i].exhausted && entries[i].timestamp < header.First {
			header.First = entries[i].timestamp
		}
	}

	buf := make([]byte, 0, MaxMergeBufferSize*2)
	off := int64(HeaderSize)

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		if _, err := out.WriteAt(buf, off); err != nil {
			return err
		}
		off += int64(len(buf))
		buf = buf[:0]
		return nil
	}

	for {
		idx := -1
		var oldest uint64 = math.MaxUint64

		for i := range entries {
			if !entries[i].exhausted && entries[i].timestamp < oldest {
				oldest = entries[i].timestamp
				idx = i
			}
		}

		if idx < 0 {
			break
		}

		rec := entries[idx].body
		buf = appendU16len(buf, rec)
		header.Last = oldest

		if len(buf) >= MaxMergeBufferSize {
			if err := flush(); err != nil {
				return fail(errors.Wrap(err, "eventfile: flush merged buffer"))
			}
		}

		if err := entries[idx].advance(); err != nil {
			return fail(err)
		}
	}

	if err := flush(); err != nil {
		return fail(errors.Wrap(err, "eventfile: final flush"))
	}

	if header.First == math.MaxUint64 {
		header.First = 0
	}

	if _, err := out.WriteAt(header.Encode(), 0); err != nil {
		return fail(errors.Wrap(err, "eventfile: patch header"))
	}

	return out.Close()
}

func appendU16len(buf, body []byte) []byte {
	n := len(body)
	buf = append(buf, byte(n>>8), byte(n))
	return append(buf, body...)
}
