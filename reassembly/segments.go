// Package reassembly buffers out-of-order TCP segments for one direction
// of a flow and delivers them to a payload callback in sequence-number
// order, per spec §4.5. It is not on netmon's hot path — the tracker
// emits tcp_data per observed segment regardless of ordering — but is
// available to callers (e.g. a future stream-extraction tool) that need
// ordered bytes rather than per-packet events.
package reassembly

// maxSegments and maxSize bound how far out of order this buffer will
// wait before giving up and reporting a gap.
const (
	maxSegments = 32
	maxSize     = 64 * 1024
)

type segment struct {
	seqno uint32
	data  []byte // sub-slice of the owning Segments' payloads array
	prev  int    // -1 if none
	next  int    // -1 if none
}

// Segments reassembles one direction of a TCP stream. The zero value is
// not usable; construct with New.
type Segments struct {
	segs     [maxSegments]segment
	payloads [maxSegments][maxSize]byte

	firstSegment int
	lastSegment  int
	freeSegment  int

	nextSeqno uint32

	payloadfn func([]byte)
	gapfn     func(gap uint32)
}

// New returns a Segments ready to accept segments starting at any
// sequence number; call NextSequenceNumber once the stream's initial
// sequence number is known (typically right after the SYN/SYN-ACK).
// payloadfn is called with each in-order run of bytes as it becomes
// available; gapfn is called with the size of a gap this buffer gave up
// waiting to fill (spec §4.5's 32-segment/64KiB bound).
func New(payloadfn func([]byte), gapfn func(gap uint32)) *Segments {
	s := &Segments{payloadfn: payloadfn, gapfn: gapfn}
	s.clear()
	return s
}

// Clear discards all buffered segments, ready for reuse on a new stream.
func (s *Segments) Clear() {
	s.clear()
}

func (s *Segments) clear() {
	for i := 0; i < maxSegments-1; i++ {
		s.segs[i].next = i + 1
	}
	s.segs[maxSegments-1].next = -1

	s.firstSegment = -1
	s.lastSegment = -1
	s.freeSegment = 0
}

// NextSequenceNumber sets the sequence number this buffer is waiting for.
func (s *Segments) NextSequenceNumber(seqno uint32) {
	s.nextSeqno = seqno
}

// Add offers one observed segment to the buffer. It returns false when
// payload is larger than maxSize or the segment's (seqno, len) is
// inconsistent with an already-buffered segment it overlaps (both are
// signals the caller should abandon reassembly for this stream), and also
// for a stale segment whose seqno lies before the one the buffer waits for.
func (s *Segments) Add(seqno uint32, payload []byte) bool {
	if len(payload) > maxSize {
		return false
	}

	for {
		if seqno == s.nextSeqno {
			s.payloadfn(payload)
			s.nextSeqno += uint32(len(payload))
			s.checkPayloads()
			return true
		}

		if s.nextSeqno-seqno < 0x80000000 {
			// Strictly before the window we're waiting for: stale segment.
			return false
		}

		if s.lastSegment == -1 {
			pos := s.freeSegment
			seg := &s.segs[pos]
			s.firstSegment = pos
			s.lastSegment = pos
			s.freeSegment = seg.next

			seg.seqno = seqno
			copy(s.payloads[pos][:], payload)
			seg.data = s.payloads[pos][:len(payload)]
			seg.prev = -1
			seg.next = -1
			return true
		}

		i := s.lastSegment
		var cur *segment

		if seqno >= s.nextSeqno {
			for {
				cur = &s.segs[i]
				if seqno >= cur.seqno {
					break
				}
				if s.segs[i].prev == -1 {
					i = -1
					break
				}
				i = s.segs[i].prev
			}
		} else {
			cur = &s.segs[i]
		}

		if i != -1 {
			switch {
			case cur.seqno+uint32(len(cur.data)) <= seqno:
				if s.freeSegment != -1 {
					pos := s.freeSegment
					seg := &s.segs[pos]

					if cur.next == -1 {
						s.lastSegment = pos
					} else {
						next := &s.segs[cur.next]
						if seqno+uint32(len(payload)) <= next.seqno {
							next.prev = pos
						} else {
							return false
						}
					}

					s.freeSegment = seg.next

					seg.seqno = seqno
					copy(s.payloads[pos][:], payload)
					seg.data = s.payloads[pos][:len(payload)]
					seg.prev = i
					seg.next = cur.next
					cur.next = pos
					return true
				}

				first := &s.segs[s.firstSegment]
				s.gapfn(first.seqno - s.nextSeqno)
				s.nextSeqno = first.seqno
				s.checkPayloads()
				continue

			case seqno == cur.seqno && len(payload) == len(cur.data):
				// Duplicate segment, already buffered.
				return true

			default:
				return false
			}
		}

		// No existing segment starts at or before seqno: it belongs
		// before the current first segment.
		if seqno+uint32(len(payload)) > cur.seqno {
			return false
		}

		if s.freeSegment != -1 {
			pos := s.freeSegment
			seg := &s.segs[pos]
			s.freeSegment = seg.next

			seg.seqno = seqno
			copy(s.payloads[pos][:], payload)
			seg.data = s.payloads[pos][:len(payload)]
			seg.prev = -1
			seg.next = s.firstSegment

			s.firstSegment = pos
			cur.prev = pos
			return true
		}

		s.gapfn(seqno - s.nextSeqno)
		s.payloadfn(payload)
		s.nextSeqno = seqno + uint32(len(payload))
		s.checkPayloads()
		return true
	}
}

// Fin flushes every buffered segment once the stream's FIN has been
// seen, delivering only the run that's still contiguous with
// nextSeqno — anything past the first gap is dropped.
func (s *Segments) Fin() {
	for s.firstSegment != -1 {
		pos := s.firstSegment
		first := &s.segs[pos]

		s.firstSegment = first.next
		first.next = s.freeSegment
		s.freeSegment = pos

		if first.seqno == s.nextSeqno {
			s.payloadfn(first.data)
			s.nextSeqno += uint32(len(first.data))
		}

		if s.firstSegment != -1 {
			s.segs[s.firstSegment].prev = -1
		} else {
			s.lastSegment = -1
			return
		}
	}
}

// checkPayloads drains every buffered segment at or before nextSeqno,
// delivering the ones that are exactly contiguous and silently
// discarding stale ones that have fallen behind.
func (s *Segments) checkPayloads() {
	for s.firstSegment != -1 && s.segs[s.firstSegment].seqno <= s.nextSeqno {
		pos := s.firstSegment
		first := &s.segs[pos]

		s.firstSegment = first.next
		first.next = s.freeSegment
		s.freeSegment = pos

		if first.seqno == s.nextSeqno {
			s.payloadfn(first.data)
			s.nextSeqno += uint32(len(first.data))
		}

		if s.firstSegment != -1 {
			s.segs[s.firstSegment].prev = -1
		} else {
			s.lastSegment = -1
			return
		}
	}
}
