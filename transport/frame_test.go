package transport

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	cases := []FrameHeader{
		{Reliable: false, AckIDPresent: false, SOP: SOPData, Length: 1},
		{Reliable: true, AckIDPresent: true, SOP: SOPData, Length: 7},
		{Reliable: true, AckIDPresent: false, SOP: SOPFrag, Length: 8},
		{Reliable: false, AckIDPresent: false, SOP: SOPAck, Length: 2047},
		{Reliable: true, AckIDPresent: true, SOP: SOPInternal, Length: 2048},
	}
	for _, want := range cases {
		buf := EncodeHeader(nil, want)
		got, n, err := DecodeHeader(buf)
		if err != nil {
			t.Fatalf("decode %+v: %v", want, err)
		}
		if n != len(buf) {
			t.Errorf("consumed %d, want %d for %+v", n, len(buf), want)
		}
		if got != want {
			t.Errorf("got %+v, want %+v", got, want)
		}
	}
}

func TestHeaderSizeMatchesEncode(t *testing.T) {
	for _, length := range []int{1, 7, 8, 2047, 2048} {
		h := FrameHeader{SOP: SOPData, Length: length}
		buf := EncodeHeader(nil, h)
		if got := HeaderSize(length); got != len(buf) {
			t.Errorf("HeaderSize(%d) = %d, want %d", length, got, len(buf))
		}
	}
}

func TestDecodeHeaderTruncated(t *testing.T) {
	if _, _, err := DecodeHeader(nil); err != ErrTruncated {
		t.Errorf("empty input: got %v, want ErrTruncated", err)
	}
	// Two-byte header (bit7 set) with only one byte supplied.
	h := FrameHeader{SOP: SOPData, Length: 2048}
	buf := EncodeHeader(nil, h)
	if _, _, err := DecodeHeader(buf[:1]); err != ErrTruncated {
		t.Errorf("truncated second byte: got %v, want ErrTruncated", err)
	}
}

func TestFragmentStartRoundTrip(t *testing.T) {
	for _, total := range []uint16{0, 1, 500, 65534, HugeSentinel} {
		buf := EncodeFragmentStart(nil, total)
		got, n, err := DecodeFragmentStart(buf)
		if err != nil {
			t.Fatalf("decode %d: %v", total, err)
		}
		if n != 2 {
			t.Errorf("consumed %d, want 2", n)
		}
		if got != total {
			t.Errorf("got %d, want %d", got, total)
		}
	}
}
