package capture

import (
	"sync"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
)

// PCAPConfig mirrors net/capture/socket.h's create() parameters, backed by
// libpcap instead of a bare AF_PACKET socket.
type PCAPConfig struct {
	Interface   string
	Promiscuous bool
	SnapLen     int32
	RcvBufSize  int

	// Timeout bounds how long a single ReadFrame blocks with no packet
	// available before libpcap returns control; it does not affect the
	// worker's idle cadence, which runs on its own ticker.
	Timeout time.Duration
}

const DefaultSnapLen = 262144

type pcapSource struct {
	h *pcap.Handle

	mu     sync.Mutex
	closed bool
}

// NewPCAP opens a live capture on cfg.Interface via libpcap.
func NewPCAP(cfg PCAPConfig) (Source, error) {
	snaplen := cfg.SnapLen
	if snaplen == 0 {
		snaplen = DefaultSnapLen
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = pcap.BlockForever
	}

	inactive, err := pcap.NewInactiveHandle(cfg.Interface)
	if err != nil {
		return nil, errors.Wrap(err, "capture: create inactive pcap handle")
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(int(snaplen)); err != nil {
		return nil, errors.Wrap(err, "capture: set snaplen")
	}
	if err := inactive.SetPromisc(cfg.Promiscuous); err != nil {
		return nil, errors.Wrap(err, "capture: set promiscuous mode")
	}
	if err := inactive.SetTimeout(timeout); err != nil {
		return nil, errors.Wrap(err, "capture: set read timeout")
	}
	if cfg.RcvBufSize > 0 {
		if err := inactive.SetBufferSize(cfg.RcvBufSize); err != nil {
			return nil, errors.Wrap(err, "capture: set receive buffer size")
		}
	}

	handle, err := inactive.Activate()
	if err != nil {
		return nil, errors.Wrap(err, "capture: activate pcap handle")
	}

	return &pcapSource{h: handle}, nil
}

func (p *pcapSource) ReadFrame() ([]byte, time.Time, error) {
	data, ci, err := p.h.ReadPacketData()
	if err != nil {
		return nil, time.Time{}, err
	}
	return data, ci.Timestamp, nil
}

func (p *pcapSource) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.h.Close()
	return nil
}

func (p *pcapSource) LinkType() layers.LinkType {
	return p.h.LinkType()
}
