package transport

import "testing"

func TestEncodeDecodeAckRollupOnly(t *testing.T) {
	fields := []AckField{
		{Rollup: true, Stream: 0, NextID: 42},
		{Rollup: true, Stream: 1, NextID: 0},
	}
	body := EncodeAck(nil, 55, fields)
	rtt, got, err := DecodeAck(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rtt != 55 {
		t.Errorf("rtt = %d, want 55", rtt)
	}
	if len(got) != len(fields) {
		t.Fatalf("got %d fields, want %d", len(got), len(fields))
	}
	for i, f := range fields {
		if got[i] != f {
			t.Errorf("field %d: got %+v, want %+v", i, got[i], f)
		}
	}
}

func TestEncodeDecodeAckWithRanges(t *testing.T) {
	fields := []AckField{
		{Rollup: true, Stream: 1, NextID: 10},
		{Start: 12, End: 12, StartOnly: true},
		{Start: 15, End: 20},
		{Rollup: true, Stream: 2, NextID: 1000},
		{Start: 1002, End: 1050},
	}
	body := EncodeAck(nil, 300, fields)
	rtt, got, err := DecodeAck(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rtt != 300 {
		t.Errorf("rtt = %d, want 300", rtt)
	}
	if len(got) != len(fields) {
		t.Fatalf("got %d fields, want %d: %+v", len(got), len(fields), got)
	}
	for i, f := range fields {
		if got[i] != f {
			t.Errorf("field %d: got %+v, want %+v", i, got[i], f)
		}
	}
}

func TestRTTEncodingBothWidths(t *testing.T) {
	for _, ms := range []uint16{0, 0x7f, 0x80, 1000, 0x7fff} {
		buf := encodeRTT(nil, ms)
		got, n, err := decodeRTT(buf)
		if err != nil {
			t.Fatalf("ms=%d: %v", ms, err)
		}
		if n != len(buf) {
			t.Errorf("ms=%d: consumed %d, want %d", ms, n, len(buf))
		}
		if got != ms {
			t.Errorf("ms=%d: got %d", ms, got)
		}
	}
}

func TestApplyAckFieldsEvictsRollupPrefix(t *testing.T) {
	list := newSentList()
	for i := uint32(0); i < 5; i++ {
		list.append(&sentNode{id: i})
	}
	fields := []AckField{{Rollup: true, Stream: 0, NextID: 3}}
	result := ApplyAckFields(list, fields)
	if len(result.evicted) != 3 {
		t.Fatalf("evicted %d, want 3", len(result.evicted))
	}
	if list.len() != 2 {
		t.Fatalf("remaining %d, want 2", list.len())
	}
	if _, ok := list.get(3); !ok {
		t.Error("id 3 should remain")
	}
}

func TestApplyAckFieldsMarksOneLossRepresentative(t *testing.T) {
	// Sent list has ids 0..4. ROLLUP says everything below 3 is received,
	// and a RANGE confirms id 4 out of order, leaving id 3 as a confirmed
	// gap: flow control should record one loss event, not two, even
	// though the gap is surrounded by confirmed ids on both sides.
	list := newSentList()
	for i := uint32(0); i < 5; i++ {
		list.append(&sentNode{id: i})
	}
	fields := []AckField{
		{Rollup: true, Stream: 0, NextID: 3},
		{Start: 4, End: 4, StartOnly: true},
	}
	result := ApplyAckFields(list, fields)
	if len(result.evicted) != 4 {
		t.Fatalf("evicted %d, want 4 (ids 0,1,2 by rollup + id 4 by range)", len(result.evicted))
	}
	if len(result.retransmit) != 1 {
		t.Fatalf("retransmit %d, want 1 (id 3)", len(result.retransmit))
	}
	if result.retransmit[0].id != 3 {
		t.Errorf("retransmit id = %d, want 3", result.retransmit[0].id)
	}
	if !result.lossEvented {
		t.Error("expected lossEvented true")
	}
	if !result.retransmit[0].lossRep {
		t.Error("expected node 3 marked as loss representative")
	}
}

func TestApplyAckFieldsDoesNotDoubleCountAlreadyMarkedLoss(t *testing.T) {
	// Same gap-in-the-middle shape as the single-representative test, but
	// the gap node was already flagged by an earlier sweep (e.g. a prior
	// ACK's retransmit): this round must retransmit it again but must not
	// report a fresh loss event for it.
	list := newSentList()
	for i := uint32(0); i < 5; i++ {
		n := &sentNode{id: i}
		if i == 3 {
			n.lossRep = true
		}
		list.append(n)
	}
	fields := []AckField{
		{Rollup: true, Stream: 0, NextID: 3},
		{Start: 4, End: 4, StartOnly: true},
	}
	result := ApplyAckFields(list, fields)
	if len(result.retransmit) != 1 || result.retransmit[0].id != 3 {
		t.Fatalf("retransmit = %+v, want [id 3]", result.retransmit)
	}
	if result.lossEvented {
		t.Error("expected lossEvented false: node was already a loss representative")
	}
}
