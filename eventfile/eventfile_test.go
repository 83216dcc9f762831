package eventfile

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guidoreina/netmon/event"
	"github.com/guidoreina/netmon/netaddr"
)

func mustAddr(t *testing.T, b ...byte) netaddr.Addr {
	t.Helper()
	a, err := netaddr.FromBytes(b)
	require.NoError(t, err)
	return a
}

func tcpBegin(t *testing.T, ts uint64, sport, dport uint16) *event.TCPBegin {
	return &event.TCPBegin{
		Base:  event.Base{Timestamp: ts, Saddr: mustAddr(t, 1, 1, 1, 1), Daddr: mustAddr(t, 2, 2, 2, 2)},
		Sport: sport,
		Dport: dport,
	}
}

func tcpEnd(t *testing.T, ts, creation, client, server uint64) *event.TCPEnd {
	return &event.TCPEnd{
		Base:              event.Base{Timestamp: ts, Saddr: mustAddr(t, 1, 1, 1, 1), Daddr: mustAddr(t, 2, 2, 2, 2)},
		Sport:             1234,
		Dport:             443,
		Creation:          creation,
		TransferredClient: client,
		TransferredServer: server,
	}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.bin")

	w := NewWriter(MinBufferSize)
	require.NoError(t, w.Open(path))
	require.NoError(t, w.Write(tcpBegin(t, 100, 1, 2)))
	require.NoError(t, w.Write(tcpBegin(t, 200, 3, 4)))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, uint64(100), r.Header().First)
	require.Equal(t, uint64(200), r.Header().Last)

	ev1, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, event.KindTCPBegin, ev1.Kind())
	require.Equal(t, uint64(100), event.Timestamp(ev1))

	ev2, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, uint64(200), event.Timestamp(ev2))

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestReaderRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, HeaderSize), 0o644))

	_, err := Open(path)
	require.ErrorIs(t, err, ErrBadMagic)
}

func writeFile(t *testing.T, path string, events ...event.Event) {
	t.Helper()
	w := NewWriter(MinBufferSize)
	require.NoError(t, w.Open(path))
	for _, e := range events {
		require.NoError(t, w.Write(e))
	}
	require.NoError(t, w.Close())
}

func TestMergeOrdersByTimestamp(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")
	out := filepath.Join(dir, "out.bin")

	writeFile(t, a, tcpBegin(t, 100, 1, 2), tcpBegin(t, 300, 5, 6))
	writeFile(t, b, tcpBegin(t, 150, 3, 4), tcpBegin(t, 400, 7, 8))

	require.NoError(t, Merge([]string{a, b}, out))

	r, err := Open(out)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, uint64(100), r.Header().First)
	require.Equal(t, uint64(400), r.Header().Last)

	var timestamps []uint64
	for {
		ev, err := r.Next()
		if err != nil {
			break
		}
		timestamps = append(timestamps, event.Timestamp(ev))
	}
	require.Equal(t, []uint64{100, 150, 300, 400}, timestamps)
}

func TestMergeRejectsExistingOutput(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")
	out := filepath.Join(dir, "out.bin")

	writeFile(t, a, tcpBegin(t, 1, 1, 2))
	writeFile(t, b, tcpBegin(t, 2, 1, 2))
	require.NoError(t, os.WriteFile(out, []byte("x"), 0o644))

	err := Merge([]string{a, b}, out)
	require.ErrorIs(t, err, ErrOutputExists)
}

func TestMergeRejectsSingleInput(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	writeFile(t, a, tcpBegin(t, 1, 1, 2))

	err := Merge([]string{a}, filepath.Join(dir, "out.bin"))
	require.ErrorIs(t, err, ErrTooFewInputs)
}

func TestSortByDurationDescending(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.bin")
	out := filepath.Join(dir, "out.bin")

	writeFile(t, in,
		tcpEnd(t, 110, 100, 10, 10), // duration 10
		tcpEnd(t, 150, 100, 10, 10), // duration 50
		tcpEnd(t, 105, 100, 10, 10), // duration 5
	)

	require.NoError(t, Sort(in, out, SortByDuration, Descending))

	r, err := Open(out)
	require.NoError(t, err)
	defer r.Close()

	var durations []uint64
	for {
		ev, err := r.Next()
		if err != nil {
			break
		}
		te := ev.(*event.TCPEnd)
		durations = append(durations, te.Base.Timestamp-te.Creation)
	}
	require.Equal(t, []uint64{50, 10, 5}, durations)
}

func TestSortByTransferredSum(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.bin")
	out := filepath.Join(dir, "out.bin")

	writeFile(t, in,
		tcpEnd(t, 200, 100, 10, 10), // sum 20
		tcpEnd(t, 200, 100, 100, 100), // sum 200
	)

	require.NoError(t, Sort(in, out, SortByTransferred, Ascending))

	r, err := Open(out)
	require.NoError(t, err)
	defer r.Close()

	ev, err := r.Next()
	require.NoError(t, err)
	te := ev.(*event.TCPEnd)
	require.Equal(t, uint64(10), te.TransferredClient)
}
