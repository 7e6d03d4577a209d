package transport

// ACK-ID tag widths, in significant bits:
//
//	byte0 of tag: [C|ID(5)|STREAM(2)]
//	byte1 (if C=1): [C|ID(7)]
//	byte2 (if C=1): [ID(8)]
const (
	TagWidth5  = 5
	TagWidth12 = 12
	TagWidth20 = 20
)

// Compression thresholds, grounded on original_source's
// ACK_ID_1_THRESH/ACK_ID_2_THRESH (Transport.cpp:1745-1752): the forward
// distance from the reference ACK-ID to the value being sent determines
// how many bits are needed to land inside half the reconstruction window.
const (
	ackID1Thresh = 16   // 2^(TagWidth5-1)
	ackID2Thresh = 2048 // 2^(TagWidth12-1)
)

// ChooseTagWidth picks the smallest tag width that can carry an ACK-ID at
// forward distance diff from the reference the receiver will reconstruct
// against. diff must be non-negative (id >= reference).
func ChooseTagWidth(diff uint32) uint {
	switch {
	case diff < ackID1Thresh:
		return TagWidth5
	case diff < ackID2Thresh:
		return TagWidth12
	default:
		return TagWidth20
	}
}

// TagSize returns the encoded size in bytes for a given tag width.
func TagSize(width uint) int {
	switch width {
	case TagWidth5:
		return 1
	case TagWidth12:
		return 2
	default:
		return 3
	}
}

// EncodeAckIDTag appends the self-delimited ACK-ID tag for the given
// stream, full id and width. Only the low `width` bits of id are encoded;
// the receiver reconstructs the full value via ReconstructAckID.
func EncodeAckIDTag(buf []byte, stream uint8, id uint32, width uint) []byte {
	switch width {
	case TagWidth5:
		b0 := (byte(id&0x1F) << 2) | (stream & 0x3)
		return append(buf, b0)
	case TagWidth12:
		b0 := 0x80 | (byte(id&0x1F) << 2) | (stream & 0x3)
		b1 := byte((id >> 5) & 0x7F)
		return append(buf, b0, b1)
	default:
		b0 := 0x80 | (byte(id&0x1F) << 2) | (stream & 0x3)
		b1 := 0x80 | byte((id>>5)&0x7F)
		b2 := byte((id >> 12) & 0xFF)
		return append(buf, b0, b1, b2)
	}
}

// DecodeAckIDTag parses a self-delimited ACK-ID tag, returning the stream,
// the raw low-order bits of the id (not yet reconstructed against a
// reference), the width used, and bytes consumed.
func DecodeAckIDTag(data []byte) (stream uint8, raw uint32, width uint, consumed int, err error) {
	if len(data) < 1 {
		return 0, 0, 0, 0, ErrTruncated
	}
	b0 := data[0]
	stream = b0 & 0x3
	raw = uint32(b0>>2) & 0x1F
	consumed = 1
	width = TagWidth5

	if b0&0x80 == 0 {
		return stream, raw, width, consumed, nil
	}
	if len(data) < 2 {
		return 0, 0, 0, 0, ErrTruncated
	}
	b1 := data[1]
	raw |= uint32(b1&0x7F) << 5
	consumed = 2
	width = TagWidth12

	if b1&0x80 == 0 {
		return stream, raw, width, consumed, nil
	}
	if len(data) < 3 {
		return 0, 0, 0, 0, ErrTruncated
	}
	b2 := data[2]
	raw |= uint32(b2) << 12
	consumed = 3
	width = TagWidth20
	return stream, raw, width, consumed, nil
}

// ReconstructAckID recovers the full ACK-ID nearest ref from the raw
// low-order bits carried on the wire, via a centered wraparound rule:
// given a window of 2^width values around ref, pick the
// unique reconstruction whose signed distance from ref lies in
// [-2^(width-1), +2^(width-1)).
//
// ReconstructAckID is injective on that interval for every width in
// {5, 12, 20}.
func ReconstructAckID(ref uint32, raw uint32, width uint) uint32 {
	mod := uint32(1) << width
	half := mod >> 1
	base := ref &^ (mod - 1)
	candidate := int64(base) | int64(raw)
	diff := candidate - int64(ref)
	if diff < -int64(half) {
		candidate += int64(mod)
	} else if diff >= int64(half) {
		candidate -= int64(mod)
	}
	if candidate < 0 {
		candidate = 0
	}
	return uint32(candidate)
}
