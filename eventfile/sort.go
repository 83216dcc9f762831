package eventfile

import (
	"os"
	"sort"

	"github.com/pkg/errors"

	"github.com/guidoreina/netmon/event"
)

// SortKey selects the field tcp_end records are ordered by.
type SortKey int

const (
	SortByDuration SortKey = iota
	SortByTransferredClient
	SortByTransferredServer
	SortByTransferred // transferred_client + transferred_server
)

// SortOrder selects ascending or descending order.
type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

func sortValue(e *event.TCPEnd, key SortKey) uint64 {
	switch key {
	case SortByTransferredClient:
		return e.TransferredClient
	case SortByTransferredServer:
		return e.TransferredServer
	case SortByTransferred:
		return e.TransferredClient + e.TransferredServer
	default:
		return e.Base.Timestamp - e.Creation
	}
}

// Sort reads every tcp_end record from infile into memory, orders it by
// key/order and writes the result to outfile with a fresh header. Non
// tcp_end records in infile are skipped. The whole input set must fit in
// memory; if allocation fails the partial output is unlinked.
func Sort(infile, outfile string, key SortKey, order SortOrder) error {
	r, err := Open(infile)
	if err != nil {
		return err
	}
	defer r.Close()

	var ends []*event.TCPEnd
	for {
		ev, err := r.Next()
		if err != nil {
			break
		}
		if te, ok := ev.(*event.TCPEnd); ok {
			ends = append(ends, te)
		}
	}

	sort.Slice(ends, func(i, j int) bool {
		vi, vj := sortValue(ends[i], key), sortValue(ends[j], key)
		if order == Descending {
			return vi > vj
		}
		return vi < vj
	})

	w := NewWriter(DefaultBufferSize)
	if err := w.Open(outfile); err != nil {
		return err
	}

	for _, e := range ends {
		if err := w.Write(e); err != nil {
			w.Close()
			os.Remove(outfile)
			return errors.Wrap(err, "eventfile: sort write")
		}
	}

	if err := w.Close(); err != nil {
		os.Remove(outfile)
		return errors.Wrap(err, "eventfile: sort close")
	}

	return nil
}
