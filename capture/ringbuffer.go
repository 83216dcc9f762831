package capture

import (
	"sync"
	"time"

	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

// RingBufferConfig mirrors net/capture/ring_buffer.h's create() parameters.
type RingBufferConfig struct {
	Interface   string
	Promiscuous bool
	BlockSize   int
	FrameSize   int
	FrameCount  int
}

const (
	MinBlockSize = 128
	DefaultBlockSize = 1 << 12

	MinFrameSize = 128
	DefaultFrameSize = 1 << 11

	MinFrames = 8
	DefaultFrames = 1 << 9
)

// ringBuffer captures via AF_PACKET TPACKET_V3, the Go equivalent of the
// original's mmap'd ring buffer over a raw socket.
type ringBuffer struct {
	h *afpacket.TPacket

	mu     sync.Mutex
	closed bool
}

// NewRingBuffer opens a ring-buffer capture on cfg.Interface. Zero-valued
// BlockSize/FrameSize/FrameCount fall back to the package defaults.
func NewRingBuffer(cfg RingBufferConfig) (Source, error) {
	blockSize := cfg.BlockSize
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	frameSize := cfg.FrameSize
	if frameSize == 0 {
		frameSize = DefaultFrameSize
	}
	frameCount := cfg.FrameCount
	if frameCount == 0 {
		frameCount = DefaultFrames
	}

	if blockSize < MinBlockSize || frameSize < MinFrameSize || frameCount < MinFrames {
		return nil, errors.New("capture: ring buffer parameters below minimum")
	}

	opts := []any{
		afpacket.OptInterface(cfg.Interface),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(frameCount),
	}

	handle, err := afpacket.NewTPacket(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "capture: open ring buffer")
	}

	if cfg.Promiscuous {
		if err := setPromiscuous(cfg.Interface); err != nil {
			handle.Close()
			return nil, errors.Wrap(err, "capture: set promiscuous mode")
		}
	}

	return &ringBuffer{h: handle}, nil
}

func (r *ringBuffer) ReadFrame() ([]byte, time.Time, error) {
	data, ci, err := r.h.ReadPacketData()
	if err != nil {
		return nil, time.Time{}, err
	}
	return data, ci.Timestamp, nil
}

func (r *ringBuffer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.h.Close()
	return nil
}

func (r *ringBuffer) LinkType() layers.LinkType {
	return layers.LinkTypeEthernet
}
