package transport

// AckField is one field of a selective-ACK message body. A
// ROLLUP field asserts "everything below NextID on Stream has been
// received"; a RANGE field asserts an additional contiguous run
// [Start, End] was received out of order.
type AckField struct {
	Rollup bool

	Stream uint8  // valid when Rollup
	NextID uint32 // valid when Rollup

	Start     uint32 // valid when !Rollup
	End       uint32 // valid when !Rollup
	StartOnly bool   // valid when !Rollup: true if Start == End
}

// encodeRTT/decodeRTT store the average round-trip-time sample that opens
// every ACK body, in 1 or 2 bytes depending on magnitude.
func encodeRTT(buf []byte, ms uint16) []byte {
	if ms < 0x80 {
		return append(buf, byte(ms))
	}
	return append(buf, byte(ms&0x7f)|0x80, byte(ms>>7))
}

func decodeRTT(data []byte) (uint16, int, error) {
	if len(data) < 1 {
		return 0, 0, ErrTruncated
	}
	if data[0]&0x80 == 0 {
		return uint16(data[0]), 1, nil
	}
	if len(data) < 2 {
		return 0, 0, ErrTruncated
	}
	return uint16(data[0]&0x7f) | uint16(data[1])<<7, 2, nil
}

// offset tag widths for RANGE fields: these carry a small forward delta
// from the previously emitted id in the same ACK body, not a value that
// needs reference-relative reconstruction, so each width encodes its full
// magnitude directly rather than truncating against a window.
const (
	offsetWidth7  = 7
	offsetWidth14 = 14
	offsetWidth22 = 22
)

func chooseOffsetWidth(v uint32) uint {
	switch {
	case v < 1<<offsetWidth7:
		return offsetWidth7
	case v < 1<<offsetWidth14:
		return offsetWidth14
	default:
		return offsetWidth22
	}
}

func encodeOffsetTag(buf []byte, v uint32) []byte {
	width := chooseOffsetWidth(v)
	switch width {
	case offsetWidth7:
		return append(buf, byte(v&0x7f))
	case offsetWidth14:
		b0 := 0x80 | byte(v&0x7f)
		b1 := byte((v >> 7) & 0x7f)
		return append(buf, b0, b1)
	default:
		b0 := 0x80 | byte(v&0x7f)
		b1 := 0x80 | byte((v>>7)&0x7f)
		b2 := byte((v >> 14) & 0xFF)
		return append(buf, b0, b1, b2)
	}
}

func decodeOffsetTag(data []byte) (uint32, int, error) {
	if len(data) < 1 {
		return 0, 0, ErrTruncated
	}
	v := uint32(data[0] & 0x7f)
	if data[0]&0x80 == 0 {
		return v, 1, nil
	}
	if len(data) < 2 {
		return 0, 0, ErrTruncated
	}
	v |= uint32(data[1]&0x7f) << 7
	if data[1]&0x80 == 0 {
		return v, 2, nil
	}
	if len(data) < 3 {
		return 0, 0, ErrTruncated
	}
	v |= uint32(data[2]) << 14
	return v, 3, nil
}

// EncodeAck serializes an average-RTT sample and an ordered sequence of
// fields into an ACK message body. Fields must already be grouped by
// stream (all of one stream's ROLLUP and RANGEs before the next stream's
// ROLLUP), matching the order ack-field generation in connection.go
// produces by walking streams 0..NumStreams-1.
func EncodeAck(buf []byte, avgRTTMs uint16, fields []AckField) []byte {
	buf = encodeRTT(buf, avgRTTMs)
	var prev uint32
	for _, f := range fields {
		if f.Rollup {
			ida := byte(0x01) | (f.Stream&0x3)<<1
			lowID := byte(f.NextID & 0x1F)
			ida |= lowID << 3
			b1 := byte((f.NextID >> 5) & 0xFF)
			b2 := byte((f.NextID >> 13) & 0x7F)
			buf = append(buf, ida, b1, b2)
			prev = f.NextID
			continue
		}
		var ida byte
		if f.StartOnly {
			ida = 0x02
		}
		buf = append(buf, ida)
		buf = encodeOffsetTag(buf, f.Start-prev)
		if !f.StartOnly {
			buf = encodeOffsetTag(buf, f.End-f.Start)
		}
		prev = f.End
	}
	return buf
}

// DecodeAck parses an ACK message body produced by EncodeAck.
func DecodeAck(data []byte) (avgRTTMs uint16, fields []AckField, err error) {
	avgRTTMs, n, err := decodeRTT(data)
	if err != nil {
		return 0, nil, err
	}
	data = data[n:]

	var prev uint32
	for len(data) > 0 {
		ida := data[0]
		if ida&0x01 != 0 {
			if len(data) < 3 {
				return 0, nil, ErrTruncated
			}
			stream := (ida >> 1) & 0x3
			id := uint32(ida>>3) & 0x1F
			id |= uint32(data[1]) << 5
			id |= uint32(data[2]&0x7F) << 13
			fields = append(fields, AckField{Rollup: true, Stream: stream, NextID: id})
			prev = id
			data = data[3:]
			continue
		}
		startOnly := ida&0x02 != 0
		data = data[1:]
		delta, n, err := decodeOffsetTag(data)
		if err != nil {
			return 0, nil, err
		}
		data = data[n:]
		start := prev + delta
		end := start
		if !startOnly {
			delta2, n2, err := decodeOffsetTag(data)
			if err != nil {
				return 0, nil, err
			}
			data = data[n2:]
			end = start + delta2
		}
		fields = append(fields, AckField{Start: start, End: end, StartOnly: startOnly})
		prev = end
	}
	return avgRTTMs, fields, nil
}

// BuildAckFields walks a receiver's per-stream state to produce the ACK
// field sequence for one outgoing ACK: one ROLLUP per stream (its
// next-expected id) followed by one RANGE per maximal contiguous run
// still queued out of order on that stream.
func BuildAckFields(nextExpected [NumStreams]uint32, waitQueues [NumStreams]*recvWaitQueue) []AckField {
	var fields []AckField
	for s := uint8(0); s < NumStreams; s++ {
		fields = append(fields, AckField{Rollup: true, Stream: s, NextID: nextExpected[s]})
		if waitQueues[s] == nil {
			continue
		}
		for _, run := range waitQueues[s].runs() {
			fields = append(fields, AckField{Start: run[0], End: run[1], StartOnly: run[0] == run[1]})
		}
	}
	return fields
}

// ackSweepResult reports the outcome of applying one stream's ACK fields
// to its sent list.
type ackSweepResult struct {
	evicted     []*sentNode
	retransmit  []*sentNode
	lossEvented bool
}

// ApplyAckFields applies the fields belonging to a single stream (one
// ROLLUP followed by zero or more RANGEs, in the order BuildAckFields
// emits them) to that stream's sent list: evicts everything the ROLLUP
// and RANGEs confirm, then sweeps for nodes below the highest id this ACK
// covered that were never confirmed - these are the negative-ack gap
//. At most one node per sweep is marked as the
// flow-control loss representative so repeated retransmits of the same
// gap are not double-counted as separate loss events.
func ApplyAckFields(list *sentList, fields []AckField) ackSweepResult {
	var result ackSweepResult
	if len(fields) == 0 || !fields[0].Rollup {
		return result
	}
	rollup := fields[0]
	result.evicted = append(result.evicted, list.evictBefore(rollup.NextID)...)
	highest := rollup.NextID

	for _, f := range fields[1:] {
		if f.Rollup {
			continue
		}
		for id := f.Start; id <= f.End; id++ {
			if n, ok := list.get(id); ok {
				list.remove(n)
				result.evicted = append(result.evicted, n)
			}
		}
		if f.End+1 > highest {
			highest = f.End + 1
		}
	}

	markedLoss := false
	list.forEach(func(n *sentNode) {
		if n.id >= highest {
			return
		}
		result.retransmit = append(result.retransmit, n)
		if !n.lossRep && !markedLoss {
			n.lossRep = true
			markedLoss = true
			result.lossEvented = true
		}
	})
	return result
}
