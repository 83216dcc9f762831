package capture

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
)

// fileReplay replays a previously captured pcap file, the frame+timeval
// source the original's offline tools (evreader et al.) read from instead
// of a live interface.
type fileReplay struct {
	f *os.File
	r *pcapgo.Reader

	mu     sync.Mutex
	closed bool
}

// NewFileReplay opens filename (pcap format) for sequential replay.
func NewFileReplay(filename string) (Source, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "capture: open capture file")
	}

	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "capture: read pcap header")
	}

	return &fileReplay{f: f, r: r}, nil
}

func (fr *fileReplay) ReadFrame() ([]byte, time.Time, error) {
	data, ci, err := fr.r.ReadPacketData()
	if err != nil {
		if err == io.EOF {
			return nil, time.Time{}, io.EOF
		}
		return nil, time.Time{}, errors.Wrap(err, "capture: read frame")
	}
	return data, ci.Timestamp, nil
}

func (fr *fileReplay) Close() error {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if fr.closed {
		return nil
	}
	fr.closed = true
	return fr.f.Close()
}

func (fr *fileReplay) LinkType() layers.LinkType {
	return fr.r.LinkType()
}
