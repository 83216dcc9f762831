// Command netmon is the live-capture monitor: it opens one capture source
// per worker, feeds frames through the parser and TCP trackers, and writes
// one event file per worker to the events directory (spec §6, "Monitor").
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/guidoreina/netmon/capture"
	"github.com/guidoreina/netmon/tcp"
	"github.com/guidoreina/netmon/worker"
)

func main() {
	var (
		captureMethod = flag.String("capture-method", "pcap", `capture method: "pcap", "ring-buffer" or "socket" (alias for ring-buffer)`)
		device        = flag.String("device", "", "capture interface name (required unless -replay is given)")
		replay        = flag.String("replay", "", "replay frames from a capture file instead of a live interface")
		promiscuous   = flag.Bool("promiscuous", false, "put the interface into promiscuous mode")
		snaplen       = flag.Int("snaplen", capture.DefaultSnapLen, "pcap snapshot length")
		rcvbuf        = flag.Int("rcvbuf", 0, "pcap receive buffer size in bytes (0: library default)")
		ringBlockSize = flag.Int("ring-block-size", capture.DefaultBlockSize, "ring-buffer block size")
		ringFrameSize = flag.Int("ring-frame-size", capture.DefaultFrameSize, "ring-buffer frame size")
		ringFrames    = flag.Int("ring-frame-count", capture.DefaultFrames, "ring-buffer frame count")

		workers    = flag.Int("workers", 1, "number of worker goroutines")
		processors = flag.String("processors", "none", `processor pinning: "all", "even", "odd", "none", or a comma-separated list of CPU ids, one per worker`)

		eventsDir  = flag.String("events-dir", ".", "directory event files are written to")
		writerBuf  = flag.Int("writer-buffer-size", 0, "writer buffer size in bytes (0: package default)")

		tcp4Size      = flag.Int("tcp4-size", tcp.DefaultSize, "IPv4 connection hash-table size (power of two)")
		tcp4MaxConns  = flag.Int("tcp4-max-connections", tcp.DefaultMaxConnections, "IPv4 max tracked connections")
		tcp6Size      = flag.Int("tcp6-size", tcp.DefaultSize, "IPv6 connection hash-table size (power of two)")
		tcp6MaxConns  = flag.Int("tcp6-max-connections", tcp.DefaultMaxConnections, "IPv6 max tracked connections")
		tcpTimeout    = flag.Duration("tcp-timeout", tcp.DefaultTimeout, "idle connection timeout")
		tcpTimeWait   = flag.Duration("tcp-time-wait", tcp.DefaultTimeWait, "time-wait duration after connection close")

		verbose = flag.Bool("verbose", false, "enable development-mode (human-readable) logging")
	)
	flag.Parse()

	if *device == "" && *replay == "" {
		fail("either -device or -replay must be given")
	}
	if *workers < 1 {
		fail("-workers must be at least 1")
	}

	logger := newLogger(*verbose)
	defer logger.Sync()
	worker.SetLogger(logger)
	tcp.SetLogger(logger)

	procs, err := parseProcessors(*processors, *workers)
	if err != nil {
		fail(err.Error())
	}

	cfg := worker.Config{
		Device:           deviceLabel(*device, *replay),
		EventsDir:        *eventsDir,
		WriterBufferSize: *writerBuf,
		TCPv4Size:        *tcp4Size,
		TCPv4MaxConns:    *tcp4MaxConns,
		TCPv6Size:        *tcp6Size,
		TCPv6MaxConns:    *tcp6MaxConns,
		TCPTimeout:       *tcpTimeout,
		TCPTimeWait:      *tcpTimeWait,
	}
	if err := cfg.Validate(); err != nil {
		fail(err.Error())
	}

	workers2 := make([]*worker.Worker, 0, *workers)
	for i := 0; i < *workers; i++ {
		src, err := openSource(sourceConfig{
			method:      *captureMethod,
			device:      *device,
			replay:      *replay,
			promiscuous: *promiscuous,
			snaplen:     int32(*snaplen),
			rcvbuf:      *rcvbuf,
			blockSize:   *ringBlockSize,
			frameSize:   *ringFrameSize,
			frameCount:  *ringFrames,
		})
		if err != nil {
			fail(fmt.Sprintf("worker %d: %v", i, err))
		}

		wc := cfg
		wc.ID = i
		wc.Processor = procs[i]

		w, err := worker.New(wc, src)
		if err != nil {
			src.Close()
			fail(fmt.Sprintf("worker %d: %v", i, err))
		}
		workers2 = append(workers2, w)
	}

	for _, w := range workers2 {
		if err := w.Start(); err != nil {
			fail(err.Error())
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	var wg sync.WaitGroup
	for _, w := range workers2 {
		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			if err := w.Stop(); err != nil {
				logger.Warn("stopping worker", zap.Error(err))
			}
		}(w)
	}
	wg.Wait()

	for _, w := range workers2 {
		w.ShowStatistics(os.Stdout)
	}
}

func newLogger(verbose bool) *zap.Logger {
	if verbose {
		l, err := zap.NewDevelopment()
		if err == nil {
			return l
		}
	}
	l, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func deviceLabel(device, replay string) string {
	if device != "" {
		return device
	}
	return strings.TrimSuffix(strings.TrimPrefix(replay, "/"), ".pcap")
}

type sourceConfig struct {
	method      string
	device      string
	replay      string
	promiscuous bool
	snaplen     int32
	rcvbuf      int
	blockSize   int
	frameSize   int
	frameCount  int
}

func openSource(c sourceConfig) (capture.Source, error) {
	if c.replay != "" {
		return capture.NewFileReplay(c.replay)
	}

	switch c.method {
	case "pcap":
		return capture.NewPCAP(capture.PCAPConfig{
			Interface:   c.device,
			Promiscuous: c.promiscuous,
			SnapLen:     c.snaplen,
			RcvBufSize:  c.rcvbuf,
		})
	case "ring-buffer", "socket":
		return capture.NewRingBuffer(capture.RingBufferConfig{
			Interface:   c.device,
			Promiscuous: c.promiscuous,
			BlockSize:   c.blockSize,
			FrameSize:   c.frameSize,
			FrameCount:  c.frameCount,
		})
	default:
		return nil, fmt.Errorf("unknown capture method %q", c.method)
	}
}

// parseProcessors expands -processors into one entry per worker: "none"
// leaves every worker unpinned, "all"/"even"/"odd" walk the online CPUs in
// order applying the matching filter, and anything else is parsed as a
// comma-separated list of CPU ids, one per worker.
func parseProcessors(spec string, workers int) ([]int, error) {
	result := make([]int, workers)

	switch spec {
	case "none", "":
		for i := range result {
			result[i] = worker.NoProcessor
		}
		return result, nil

	case "all", "even", "odd":
		ncpu := runtime.NumCPU()
		cpus := make([]int, 0, ncpu)
		for c := 0; c < ncpu; c++ {
			switch spec {
			case "even":
				if c%2 == 0 {
					cpus = append(cpus, c)
				}
			case "odd":
				if c%2 == 1 {
					cpus = append(cpus, c)
				}
			default:
				cpus = append(cpus, c)
			}
		}
		if len(cpus) == 0 {
			return nil, fmt.Errorf("-processors %q matched no online CPU", spec)
		}
		for i := range result {
			result[i] = cpus[i%len(cpus)]
		}
		return result, nil

	default:
		parts := strings.Split(spec, ",")
		if len(parts) != workers {
			return nil, fmt.Errorf("-processors lists %d ids but -workers is %d", len(parts), workers)
		}
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("-processors: invalid CPU id %q", p)
			}
			result[i] = n
		}
		return result, nil
	}
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, "netmon:", msg)
	os.Exit(1)
}
