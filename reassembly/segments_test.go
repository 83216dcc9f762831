package reassembly

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSegments(t *testing.T) (*Segments, *[][]byte, *[]uint32) {
	t.Helper()
	var delivered [][]byte
	var gaps []uint32

	s := New(
		func(p []byte) {
			cp := make([]byte, len(p))
			copy(cp, p)
			delivered = append(delivered, cp)
		},
		func(gap uint32) { gaps = append(gaps, gap) },
	)
	return s, &delivered, &gaps
}

func TestInOrderDeliveryIsImmediate(t *testing.T) {
	s, delivered, gaps := newTestSegments(t)
	s.NextSequenceNumber(0)

	require.True(t, s.Add(0, []byte("hello")))
	require.True(t, s.Add(5, []byte("world")))

	require.Equal(t, [][]byte{[]byte("hello"), []byte("world")}, *delivered)
	require.Empty(t, *gaps)
}

func TestOutOfOrderSegmentBuffersThenDrains(t *testing.T) {
	s, delivered, gaps := newTestSegments(t)
	s.NextSequenceNumber(0)

	// Segment arrives ahead of the expected sequence number: buffered,
	// not yet delivered.
	require.True(t, s.Add(5, []byte("world")))
	require.Empty(t, *delivered)

	// The gap-filling segment arrives: both are delivered in order, no
	// gap reported since nothing was ever abandoned.
	require.True(t, s.Add(0, []byte("hello")))

	require.Equal(t, [][]byte{[]byte("hello"), []byte("world")}, *delivered)
	require.Empty(t, *gaps)
}

func TestDuplicateExactSegmentIsAccepted(t *testing.T) {
	s, _, _ := newTestSegments(t)
	s.NextSequenceNumber(0)

	require.True(t, s.Add(10, []byte("abcde")))
	require.True(t, s.Add(10, []byte("abcde"))) // exact duplicate, accepted
}

func TestOverlappingInconsistentSegmentIsRejected(t *testing.T) {
	s, _, _ := newTestSegments(t)
	s.NextSequenceNumber(0)

	require.True(t, s.Add(10, []byte("abcdefghij")))
	// Overlaps [10,20) with different length: inconsistent, rejected.
	require.False(t, s.Add(10, []byte("abcdef")))
}

func TestFinDropsNonContiguousBufferedSegment(t *testing.T) {
	s, delivered, _ := newTestSegments(t)
	s.NextSequenceNumber(0)

	// "tail" arrives first and is held, awaiting seqno 0.
	require.True(t, s.Add(4, []byte("tail")))
	require.Empty(t, *delivered)

	// Fin arrives before the gap is ever filled: the buffered segment
	// sits at seqno 4, which is still ahead of nextSeqno (0), so Fin
	// does not deliver it — only a segment exactly at nextSeqno would be.
	s.Fin()
	require.Empty(t, *delivered)
}

func TestRejectsOversizedPayload(t *testing.T) {
	s, _, _ := newTestSegments(t)
	s.NextSequenceNumber(0)

	require.False(t, s.Add(0, make([]byte, maxSize+1)))
}

func TestStaleSegmentBeforeWindowIsRejected(t *testing.T) {
	s, _, _ := newTestSegments(t)
	s.NextSequenceNumber(1000)

	require.False(t, s.Add(10, []byte("stale")))
}
