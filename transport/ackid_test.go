package transport

import "testing"

func TestChooseTagWidthThresholds(t *testing.T) {
	cases := []struct {
		diff uint32
		want uint
	}{
		{0, TagWidth5},
		{15, TagWidth5},
		{16, TagWidth12},
		{2047, TagWidth12},
		{2048, TagWidth20},
		{1 << 19, TagWidth20},
	}
	for _, c := range cases {
		if got := ChooseTagWidth(c.diff); got != c.want {
			t.Errorf("ChooseTagWidth(%d) = %d, want %d", c.diff, got, c.want)
		}
	}
}

func TestAckIDTagRoundTrip(t *testing.T) {
	for _, width := range []uint{TagWidth5, TagWidth12, TagWidth20} {
		id := uint32(1)<<width - 1
		buf := EncodeAckIDTag(nil, 2, id, width)
		if len(buf) != TagSize(width) {
			t.Fatalf("width %d: encoded %d bytes, want %d", width, len(buf), TagSize(width))
		}
		stream, raw, gotWidth, n, err := DecodeAckIDTag(buf)
		if err != nil {
			t.Fatalf("width %d: decode error %v", width, err)
		}
		if n != len(buf) {
			t.Errorf("width %d: consumed %d, want %d", width, n, len(buf))
		}
		if stream != 2 {
			t.Errorf("width %d: stream = %d, want 2", width, stream)
		}
		if gotWidth != width {
			t.Errorf("width %d: decoded width = %d", width, gotWidth)
		}
		got := ReconstructAckID(id, raw, gotWidth)
		if got != id&((1<<width)-1) {
			t.Errorf("width %d: reconstructed %d, want %d", width, got, id&((1<<width)-1))
		}
	}
}

// TestReconstructAckIDCenteredWindow exercises the wraparound rule directly:
// a reference near a power-of-two boundary must still recover ids on either
// side of it, not just ids above it.
func TestReconstructAckIDCenteredWindow(t *testing.T) {
	cases := []struct {
		ref, id uint32
	}{
		{100, 100},
		{100, 103},
		{100, 97},  // id slightly behind ref (duplicate/out-of-order ack context)
		{1000, 1015},
		{1000, 985},
		{1 << 20, (1 << 20) + 5},
	}
	for _, c := range cases {
		width := ChooseTagWidth(absDiff(c.ref, c.id))
		raw := c.id & ((1 << width) - 1)
		got := ReconstructAckID(c.ref, raw, width)
		if got != c.id {
			t.Errorf("ref=%d id=%d width=%d: reconstructed %d", c.ref, c.id, width, got)
		}
	}
}

func absDiff(ref, id uint32) uint32 {
	if id >= ref {
		return id - ref
	}
	return ref - id
}

func TestReconstructAckIDNeverNegative(t *testing.T) {
	// ref=2 with raw=31 at width 5 reconstructs to a candidate of -1 before
	// clamping (base=0, candidate=31, diff=29 >= half(16) so it wraps down
	// by mod(32) to -1); ReconstructAckID must clamp that to 0.
	got := ReconstructAckID(2, 31, TagWidth5)
	if got != 0 {
		t.Errorf("expected clamp to 0, got %d", got)
	}
}
