package worker

import (
	"io"
	"strconv"

	"github.com/evilsocket/islazy/tui"

	"github.com/guidoreina/netmon/tcp"
)

// ShowStatistics prints this worker's connection-table occupancy to w,
// supplementing the original's standalone evconnections dump tool (spec
// §7 calls for shutdown statistics without naming their exact shape).
func (w *Worker) ShowStatistics(out io.Writer) {
	tui.Table(out, []string{"Worker", "Value"}, [][]string{
		{"id", strconv.Itoa(w.cfg.ID)},
		{"device", w.cfg.Device},
	})

	statsTable(out, "IPv4 connection table", w.tcp4.Stats())
	statsTable(out, "IPv6 connection table", w.tcp6.Stats())
}

func statsTable(out io.Writer, title string, s tcp.Stats) {
	tui.Table(out, []string{title, "Value"}, [][]string{
		{"buckets", strconv.Itoa(s.Buckets)},
		{"non-empty buckets", strconv.Itoa(s.NonEmptyBuckets)},
		{"max chain length", strconv.Itoa(s.MaxChainLength)},
		{"connections", strconv.FormatUint(s.Connections, 10)},
		{"max connections", strconv.FormatUint(s.MaxConnections, 10)},
	})
}
